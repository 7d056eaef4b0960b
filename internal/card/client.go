package card

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrKeyNotFound 指定的密钥槽为空
var ErrKeyNotFound = errors.New("key not found on card")

// Client 通过 APDU 实现 Card 接口
type Client struct {
	transceiver Transceiver
	selected    bool
}

var _ Card = (*Client)(nil)

// NewClient 创建卡片客户端，首次发送命令前自动选择应用
func NewClient(t Transceiver) *Client {
	return &Client{transceiver: t}
}

// exchange 发送一条命令并检查状态字
func (c *Client) exchange(ctx context.Context, cmd command) ([]byte, error) {
	if !c.selected && cmd.Ins != insSelect {
		if err := c.selectApplet(ctx); err != nil {
			return nil, err
		}
	}

	data, err := cmd.serialize()
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize command")
	}

	raw, err := c.transceiver.Transceive(ctx, data)
	if err != nil {
		c.selected = false
		if types.KindOf(err) != "" {
			return nil, err
		}
		return nil, types.ErrCardCommunication(err, fmt.Sprintf("transceive 0x%02X failed", cmd.Ins))
	}

	resp, err := parseResponse(raw)
	if err != nil {
		return nil, types.ErrCardCommunication(err, "invalid card response")
	}

	if err := statusError(resp.SW); err != nil {
		log.Debug().Uint8("ins", cmd.Ins).Str("sw", fmt.Sprintf("%04X", resp.SW)).Msg("Card returned error status")
		return nil, err
	}

	return resp.Data, nil
}

func (c *Client) selectApplet(ctx context.Context) error {
	_, err := c.exchange(ctx, command{Cla: cla, Ins: insSelect, P1: 0x04, P2: 0x00, Data: appletAID, withLe: true})
	if err != nil {
		return errors.Wrap(err, "failed to select applet")
	}
	c.selected = true
	return nil
}

// statusError 将状态字映射为错误分类
func statusError(sw uint16) error {
	switch {
	case sw == swOK:
		return nil
	case sw == swKeyNotFound:
		return ErrKeyNotFound
	case sw&0xFFF0 == swWrongPINMask:
		return types.ErrInvalidCredential(fmt.Sprintf("wrong pin, %d attempts left", sw&0x000F))
	case sw == swPINBlocked:
		return types.ErrInvalidCredential("pin blocked")
	case sw == swSecurityStatus, sw == swConditionsNotMet:
		return types.ErrInvalidCredential(fmt.Sprintf("security condition not satisfied (%04X)", sw))
	default:
		return types.ErrCardCommunication(nil, fmt.Sprintf("unexpected status word %04X", sw))
	}
}

// GetKeyInfo 读取密钥槽的公钥和计数器
func (c *Client) GetKeyInfo(ctx context.Context, keyHandle byte) (*KeyInfo, error) {
	data, err := c.exchange(ctx, command{Cla: cla, Ins: insGetKeyInfo, P1: keyHandle, P2: 0x00})
	if err != nil {
		return nil, err
	}
	if len(data) < 8+publicKeyLength {
		return nil, types.ErrCardCommunication(nil, fmt.Sprintf("key info too short: %d", len(data)))
	}

	return &KeyInfo{
		KeyHandle:        keyHandle,
		GlobalSigCounter: binary.BigEndian.Uint32(data[0:4]),
		SigCounter:       binary.BigEndian.Uint32(data[4:8]),
		PublicKey:        append([]byte{}, data[8:8+publicKeyLength]...),
	}, nil
}

// GenerateKey 在下一个空槽生成密钥，返回新的密钥句柄
func (c *Client) GenerateKey(ctx context.Context) (byte, error) {
	data, err := c.exchange(ctx, command{Cla: cla, Ins: insGenerateKey, P1: 0x00, P2: 0x00})
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, types.ErrCardCommunication(nil, "generate key returned no handle")
	}
	return data[0], nil
}

// ReadOrCreateKey 读取密钥，槽为空时生成新密钥后再读取
func (c *Client) ReadOrCreateKey(ctx context.Context, keyHandle byte) (*KeyInfo, error) {
	info, err := c.GetKeyInfo(ctx, keyHandle)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}

	handle, err := c.GenerateKey(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate key")
	}
	log.Info().Uint8("key_handle", handle).Msg("Generated new key on card")

	return c.GetKeyInfo(ctx, handle)
}

// VerifyPIN 校验 PIN
func (c *Client) VerifyPIN(ctx context.Context, pin string) error {
	data, err := EncodePIN(pin)
	if err != nil {
		return err
	}
	_, err = c.exchange(ctx, command{Cla: cla, Ins: insVerifyPIN, P1: 0x00, P2: 0x00, Data: data})
	return err
}

func (c *Client) verifyIfSet(ctx context.Context, pin string) error {
	if NoPIN(pin) {
		return nil
	}
	return c.VerifyPIN(ctx, pin)
}

// GenerateFromSeed 用种子生成密钥（写入槽 0）
func (c *Client) GenerateFromSeed(ctx context.Context, seed []byte, pin string) error {
	if len(seed) < 16 || len(seed) > 64 {
		return errors.Errorf("seed must be 16 to 64 bytes, got %d", len(seed))
	}
	if err := c.verifyIfSet(ctx, pin); err != nil {
		return err
	}
	_, err := c.exchange(ctx, command{Cla: cla, Ins: insGenerateFromSeed, P1: 0x00, P2: 0x00, Data: seed})
	return err
}

// Sign 对 32 字节摘要签名
func (c *Client) Sign(ctx context.Context, keyHandle byte, digest []byte, pin string) (*RawSignature, error) {
	if len(digest) != digestLength {
		return nil, errors.Errorf("digest must be %d bytes, got %d", digestLength, len(digest))
	}
	if err := c.verifyIfSet(ctx, pin); err != nil {
		return nil, err
	}

	data, err := c.exchange(ctx, command{Cla: cla, Ins: insGenerateSignature, P1: keyHandle, P2: 0x00, Data: digest, withLe: true})
	if err != nil {
		return nil, err
	}
	if len(data) < 8+2 {
		return nil, types.ErrCardCommunication(nil, fmt.Sprintf("signature response too short: %d", len(data)))
	}

	return &RawSignature{
		GlobalSigCounter: binary.BigEndian.Uint32(data[0:4]),
		SigCounter:       binary.BigEndian.Uint32(data[4:8]),
		DER:              append([]byte{}, data[8:]...),
	}, nil
}

// SetPIN 首次设置 PIN，返回 PUK
func (c *Client) SetPIN(ctx context.Context, pin string) ([]byte, error) {
	encoded, err := EncodePIN(pin)
	if err != nil {
		return nil, err
	}
	data, err := c.exchange(ctx, command{Cla: cla, Ins: insSetPIN, P1: 0x00, P2: 0x00, Data: encoded, withLe: true})
	if err != nil {
		return nil, err
	}
	return readPUK(data)
}

// ChangePIN 修改 PIN，返回新的 PUK
func (c *Client) ChangePIN(ctx context.Context, current string, next string) ([]byte, error) {
	cur, err := EncodePIN(current)
	if err != nil {
		return nil, err
	}
	nxt, err := EncodePIN(next)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, 2+len(cur)+len(nxt))
	payload = append(payload, byte(len(cur)))
	payload = append(payload, cur...)
	payload = append(payload, byte(len(nxt)))
	payload = append(payload, nxt...)

	data, err := c.exchange(ctx, command{Cla: cla, Ins: insChangePIN, P1: 0x00, P2: 0x00, Data: payload, withLe: true})
	if err != nil {
		return nil, err
	}
	return readPUK(data)
}

// UnlockPIN 用 PUK 解锁 PIN
func (c *Client) UnlockPIN(ctx context.Context, puk []byte) error {
	if len(puk) != pukLength {
		return types.ErrInvalidCredential(fmt.Sprintf("puk must be %d bytes", pukLength))
	}
	_, err := c.exchange(ctx, command{Cla: cla, Ins: insUnlockPIN, P1: 0x00, P2: 0x00, Data: puk})
	return err
}

func readPUK(data []byte) ([]byte, error) {
	if len(data) < pukLength {
		return nil, types.ErrCardCommunication(nil, fmt.Sprintf("puk too short: %d", len(data)))
	}
	return append([]byte{}, data[:pukLength]...), nil
}
