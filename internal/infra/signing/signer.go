package signing

import (
	"context"

	"github.com/SafeMPC/card-bridge/internal/card"
	"github.com/SafeMPC/card-bridge/internal/chain"
	"github.com/SafeMPC/card-bridge/internal/config"
	"github.com/SafeMPC/card-bridge/internal/infra/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// CardSigner 刷卡签名流水线：卡片签名、DER 解码、recovery id 计算
type CardSigner struct {
	keyHandle byte
	pin       string
}

var _ Signer = (*CardSigner)(nil)

// NewCardSigner 创建卡片签名器
func NewCardSigner(cfg config.Card) *CardSigner {
	return &CardSigner{
		keyHandle: cfg.KeyHandle,
		pin:       cfg.PIN,
	}
}

// KeyHandle 返回使用的密钥槽
func (s *CardSigner) KeyHandle() byte {
	return s.keyHandle
}

// Sign 用卡片对请求摘要签名并归一化。请求未指定账户时以卡片自身地址为准
func (s *CardSigner) Sign(ctx context.Context, c card.Card, req *SigningRequest) (*signature.Normalized, common.Address, error) {
	return s.SignDigest(ctx, c, req.BytesToSign, req.Account, s.pin)
}

// SignDigest 对任意 32 字节摘要签名，pin 覆盖配置的 PIN
func (s *CardSigner) SignDigest(ctx context.Context, c card.Card, digest []byte, expected common.Address, pin string) (*signature.Normalized, common.Address, error) {
	raw, err := c.Sign(ctx, s.keyHandle, digest, pin)
	if err != nil {
		return nil, common.Address{}, errors.Wrap(err, "card signing failed")
	}

	if expected == (common.Address{}) {
		info, err := c.ReadOrCreateKey(ctx, s.keyHandle)
		if err != nil {
			return nil, common.Address{}, errors.Wrap(err, "failed to read card key")
		}
		expected, err = chain.AddressFromPublicKey(info.PublicKey)
		if err != nil {
			return nil, common.Address{}, err
		}
	}

	normalized, err := signature.Normalize(raw.DER, digest, expected, raw.SigCounter, raw.GlobalSigCounter)
	if err != nil {
		return nil, common.Address{}, err
	}

	return normalized, expected, nil
}
