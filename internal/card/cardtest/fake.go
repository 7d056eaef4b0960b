// Package cardtest 提供内存中的卡片实现，用真实 secp256k1 密钥产生 DER 签名
package cardtest

import (
	"context"
	"encoding/asn1"
	"math/big"
	"sync"

	"github.com/SafeMPC/card-bridge/internal/card"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// DefaultPrivateKeyHex 测试用私钥
const DefaultPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// Card 内存卡片
type Card struct {
	mu               sync.Mutex
	keys             map[byte]*secp256k1.PrivateKey
	sigCounters      map[byte]uint32
	globalSigCounter uint32
	pin              string
	puk              []byte

	// HighS 为 true 时返回可延展的高 S 签名
	HighS bool
	// Err 非空时所有操作返回该错误
	Err error
	// OnSign 在签名前调用，可用于模拟阻塞或 panic
	OnSign func()

	Signed [][]byte
}

var _ card.Card = (*Card)(nil)

// New 创建只在 keyHandle 上有密钥的卡片
func New(keyHandle byte, privateKeyHex string) *Card {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		panic(err)
	}
	return &Card{
		keys:        map[byte]*secp256k1.PrivateKey{keyHandle: secp256k1.PrivKeyFromBytes(crypto.FromECDSA(key))},
		sigCounters: map[byte]uint32{},
		puk:         []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
}

// NewDefault 使用 DefaultPrivateKeyHex，密钥槽 1
func NewDefault() *Card {
	return New(1, DefaultPrivateKeyHex)
}

// Address 返回 keyHandle 对应的地址
func (c *Card) Address(keyHandle byte) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.keys[keyHandle]
	return crypto.PubkeyToAddress(*key.PubKey().ToECDSA())
}

func (c *Card) checkPIN(pin string) error {
	if c.pin == "" {
		return nil
	}
	if pin != c.pin {
		return types.ErrInvalidCredential("wrong pin")
	}
	return nil
}

func (c *Card) ReadOrCreateKey(_ context.Context, keyHandle byte) (*card.KeyInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}

	key, ok := c.keys[keyHandle]
	if !ok {
		var err error
		key, err = secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		c.keys[keyHandle] = key
	}

	return &card.KeyInfo{
		KeyHandle:        keyHandle,
		PublicKey:        key.PubKey().SerializeUncompressed(),
		SigCounter:       c.sigCounters[keyHandle],
		GlobalSigCounter: c.globalSigCounter,
	}, nil
}

func (c *Card) GenerateFromSeed(_ context.Context, seed []byte, pin string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	if err := c.checkPIN(pin); err != nil {
		return err
	}
	c.keys[0] = secp256k1.PrivKeyFromBytes(crypto.Keccak256(seed))
	return nil
}

func (c *Card) Sign(_ context.Context, keyHandle byte, digest []byte, pin string) (*card.RawSignature, error) {
	if c.OnSign != nil {
		c.OnSign()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	if err := c.checkPIN(pin); err != nil {
		return nil, err
	}
	key, ok := c.keys[keyHandle]
	if !ok {
		return nil, card.ErrKeyNotFound
	}

	der := ecdsa.Sign(key, digest).Serialize()
	if c.HighS {
		der = highS(der)
	}

	c.sigCounters[keyHandle]++
	c.globalSigCounter++
	c.Signed = append(c.Signed, append([]byte{}, digest...))

	return &card.RawSignature{
		DER:              der,
		SigCounter:       c.sigCounters[keyHandle],
		GlobalSigCounter: c.globalSigCounter,
	}, nil
}

func (c *Card) SetPIN(_ context.Context, pin string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	if c.pin != "" {
		return nil, types.ErrInvalidCredential("pin already set")
	}
	c.pin = pin
	return append([]byte{}, c.puk...), nil
}

func (c *Card) ChangePIN(_ context.Context, current string, next string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	if current != c.pin {
		return nil, types.ErrInvalidCredential("wrong pin")
	}
	c.pin = next
	return append([]byte{}, c.puk...), nil
}

func (c *Card) UnlockPIN(_ context.Context, puk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	if string(puk) != string(c.puk) {
		return types.ErrInvalidCredential("wrong puk")
	}
	c.pin = ""
	return nil
}

// highS 把低 S 签名翻转为 n-s 后重新编码
func highS(der []byte) []byte {
	var sig struct {
		R, S *big.Int
	}
	if _, err := asn1.Unmarshal(der, &sig); err != nil {
		panic(errors.Wrap(err, "failed to decode signature"))
	}
	sig.S = new(big.Int).Sub(crypto.S256().Params().N, sig.S)

	out, err := asn1.Marshal(sig)
	if err != nil {
		panic(errors.Wrap(err, "failed to encode high-s signature"))
	}
	return out
}
