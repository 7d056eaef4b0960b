package card

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/SafeMPC/card-bridge/internal/types"
)

// 卡片应用（Blockchain Security 2Go）指令
const (
	cla = 0x00

	insSelect            = 0xA4
	insGenerateKey       = 0x02
	insGenerateFromSeed  = 0x14
	insGetKeyInfo        = 0x16
	insGenerateSignature = 0x18
	insSetPIN            = 0x40
	insChangePIN         = 0x42
	insVerifyPIN         = 0x44
	insUnlockPIN         = 0x46
)

// 状态字
const (
	swOK               = 0x9000
	swKeyNotFound      = 0x6A88
	swSecurityStatus   = 0x6982
	swPINBlocked       = 0x6983
	swConditionsNotMet = 0x6985
	swWrongPINMask     = 0x63C0
)

var appletAID = []byte{0xD2, 0x76, 0x00, 0x00, 0x04, 0x15, 0x02, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01}

const (
	publicKeyLength = 65
	pukLength       = 8
	digestLength    = 32
)

// KeyInfo 卡片上某个密钥槽的信息
type KeyInfo struct {
	KeyHandle        byte
	PublicKey        []byte // 65 字节未压缩公钥
	SigCounter       uint32
	GlobalSigCounter uint32
}

// RawSignature 卡片返回的原始 DER 签名及计数器
type RawSignature struct {
	DER              []byte
	SigCounter       uint32
	GlobalSigCounter uint32
}

// Card 卡片上的密钥与 PIN 操作
type Card interface {
	ReadOrCreateKey(ctx context.Context, keyHandle byte) (*KeyInfo, error)
	GenerateFromSeed(ctx context.Context, seed []byte, pin string) error
	Sign(ctx context.Context, keyHandle byte, digest []byte, pin string) (*RawSignature, error)
	SetPIN(ctx context.Context, pin string) ([]byte, error)
	ChangePIN(ctx context.Context, current string, next string) ([]byte, error)
	UnlockPIN(ctx context.Context, puk []byte) error
}

// Transceiver 与卡片交换一条 APDU，按需建立连接
type Transceiver interface {
	Transceive(ctx context.Context, command []byte) ([]byte, error)
}

// NoPIN 判断 PIN 是否为空。表单默认值 "0" 同样表示未设置 PIN
func NoPIN(pin string) bool {
	return pin == "" || pin == "0"
}

// EncodePIN PIN 以十六进制字符串给出（可带 0x 前缀），按字节发送给卡片，例如 "1234" 为 0x12 0x34
func EncodePIN(pin string) ([]byte, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(pin, "0x"), "0X")
	if raw == "" {
		return nil, types.ErrInvalidCredential("pin must not be empty")
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, types.ErrInvalidCredential(fmt.Sprintf("pin must be an even-length hex string: %v", err))
	}
	return b, nil
}

// ValidatePIN 检查配置或命令行给出的 PIN，空值与 "0" 表示未设置
func ValidatePIN(pin string) error {
	if NoPIN(pin) {
		return nil
	}
	_, err := EncodePIN(pin)
	return err
}
