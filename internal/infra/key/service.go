package key

import (
	"context"
	"sync"

	"github.com/SafeMPC/card-bridge/internal/card"
	"github.com/SafeMPC/card-bridge/internal/chain"
	"github.com/SafeMPC/card-bridge/internal/config"
	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Service 管理当前卡片账户身份，并执行本地卡片操作
type Service struct {
	mu        sync.RWMutex
	current   *AccountIdentity
	keyHandle byte
	clock     time2.Clock
}

// NewService 创建账户服务
func NewService(cfg config.Card, clock time2.Clock) *Service {
	return &Service{
		keyHandle: cfg.KeyHandle,
		clock:     clock,
	}
}

// KeyHandle 返回配置的密钥槽
func (s *Service) KeyHandle() byte {
	return s.keyHandle
}

// Current 返回最近一次读取的账户身份
func (s *Service) Current() (*AccountIdentity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	cpy := *s.current
	return &cpy, true
}

// Refresh 读取（必要时创建）密钥并更新当前账户身份
func (s *Service) Refresh(ctx context.Context, c card.Card) (*AccountIdentity, error) {
	info, err := c.ReadOrCreateKey(ctx, s.keyHandle)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read or create keypair")
	}

	address, err := chain.AddressFromPublicKey(info.PublicKey)
	if err != nil {
		return nil, err
	}

	identity := &AccountIdentity{
		KeyHandle:        info.KeyHandle,
		PublicKey:        info.PublicKey,
		Address:          address,
		SigCounter:       info.SigCounter,
		GlobalSigCounter: info.GlobalSigCounter,
		ReadAt:           s.clock.Now(),
	}

	s.mu.Lock()
	previous := s.current
	s.current = identity
	s.mu.Unlock()

	event := log.Info()
	if previous != nil && previous.Address != identity.Address {
		event = log.Warn().Str("previous_address", previous.Address.Hex())
	}
	event.
		Str("address", address.Hex()).
		Uint8("key_handle", identity.KeyHandle).
		Uint32("sig_counter", identity.SigCounter).
		Uint32("global_sig_counter", identity.GlobalSigCounter).
		Msg("Card account read")

	return identity, nil
}

// HandleIdleTap 空闲刷卡处理：读取账户信息
func (s *Service) HandleIdleTap(ctx context.Context, c card.Card) error {
	_, err := s.Refresh(ctx, c)
	return err
}

// GenerateFromSeed 用种子在卡上生成密钥
func (s *Service) GenerateFromSeed(ctx context.Context, c card.Card, seed []byte, pin string) error {
	if err := c.GenerateFromSeed(ctx, seed, pin); err != nil {
		return errors.Wrap(err, "failed to generate key from seed")
	}
	log.Info().Msg("Generated key from seed")
	return nil
}

// SetPIN 设置 PIN，返回 PUK
func (s *Service) SetPIN(ctx context.Context, c card.Card, pin string) (*PINChange, error) {
	if card.NoPIN(pin) {
		return nil, errors.New("pin must not be empty")
	}
	puk, err := c.SetPIN(ctx, pin)
	if err != nil {
		return nil, errors.Wrap(err, "failed to set pin")
	}
	log.Info().Msg("Card pin set")
	return &PINChange{PUK: puk}, nil
}

// ChangePIN 修改 PIN，返回新的 PUK
func (s *Service) ChangePIN(ctx context.Context, c card.Card, current string, next string) (*PINChange, error) {
	if card.NoPIN(next) {
		return nil, errors.New("new pin must not be empty")
	}
	puk, err := c.ChangePIN(ctx, current, next)
	if err != nil {
		return nil, errors.Wrap(err, "failed to change pin")
	}
	log.Info().Msg("Card pin changed")
	return &PINChange{PUK: puk}, nil
}

// UnlockPIN 用 PUK 解锁
func (s *Service) UnlockPIN(ctx context.Context, c card.Card, puk []byte) error {
	if err := c.UnlockPIN(ctx, puk); err != nil {
		return errors.Wrap(err, "failed to unlock pin")
	}
	log.Info().Msg("Card pin unlocked")
	return nil
}
