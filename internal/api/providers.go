package api

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/SafeMPC/card-bridge/internal/card"
	"github.com/SafeMPC/card-bridge/internal/chain"
	"github.com/SafeMPC/card-bridge/internal/config"
	"github.com/SafeMPC/card-bridge/internal/infra/key"
	"github.com/SafeMPC/card-bridge/internal/infra/request"
	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/SafeMPC/card-bridge/internal/infra/storage"
	"github.com/SafeMPC/card-bridge/internal/metrics"
	"github.com/SafeMPC/card-bridge/internal/pairing"
	"github.com/dropbox/godropbox/time2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// PROVIDERS - define here only providers that for various reasons (e.g. cyclic dependency) can't live in their corresponding packages
// or for wrapping providers that only accept sub-configs to prevent the requirements for defining providers for sub-configs.
// https://github.com/google/wire/blob/main/docs/guide.md#defining-providers

func NewClock(t ...*testing.T) time2.Clock {
	var clock time2.Clock

	useMock := len(t) > 0 && t[0] != nil

	if useMock {
		clock = time2.NewMockClock(time.Now())
	} else {
		clock = time2.DefaultClock
	}

	return clock
}

func NoTest() []*testing.T {
	return nil
}

// NewRedisClient 未配置地址时返回 nil，账本退回内存存储
func NewRedisClient(cfg config.Server) (*redis.Client, error) {
	if cfg.Ledger.RedisAddress == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Ledger.RedisAddress,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func NewCounterStore(cfg config.Server, client *redis.Client) storage.CounterStore {
	if client == nil {
		log.Info().Msg("No redis configured, counter ledger is kept in memory")
		return storage.NewMemoryCounterStore()
	}
	return storage.NewRedisCounterStore(client, cfg.Ledger.KeyPrefix)
}

func NewCounterLedger(store storage.CounterStore, clock time2.Clock, m *metrics.Service) *storage.CounterLedger {
	return storage.NewCounterLedger(store, clock, m)
}

func NewChainRegistry(cfg config.Server) (*chain.Registry, error) {
	return chain.NewRegistry(context.Background(), cfg.Chains)
}

func NewKeyService(cfg config.Server, clock time2.Clock) *key.Service {
	return key.NewService(cfg.Card, clock)
}

// NewCardSigner 配置的 PIN 格式错误时直接失败，避免每次签名都消耗卡片的重试次数
func NewCardSigner(cfg config.Server) (*signing.CardSigner, error) {
	if err := card.ValidatePIN(cfg.Card.PIN); err != nil {
		return nil, fmt.Errorf("invalid card pin in configuration: %w", err)
	}
	return signing.NewCardSigner(cfg.Card), nil
}

func NewBridge(cfg config.Server, signer signing.Signer, clock time2.Clock, m *metrics.Service) *signing.Bridge {
	return signing.NewBridge(cfg.Bridge, signer, clock, m)
}

// NewRequestFactory 交易适配器直接使用链自身的 RPC
func NewRequestFactory() *request.Factory {
	return request.NewFactory(nil)
}

func NewSessionManager(cfg config.Server, chains *chain.Registry, keys *key.Service, clock time2.Clock) *pairing.SessionManager {
	return pairing.NewSessionManager(cfg.Pairing, chains, keys, clock)
}

// NewWatcher 连接 pcscd，读卡器关闭时返回 nil
func NewWatcher(cfg config.Server) (*card.Watcher, error) {
	if !cfg.Card.Enabled {
		log.Warn().Msg("Card reader disabled by configuration")
		return nil, nil
	}

	readers, err := card.NewPCSCContext(cfg.Card.PCSCDaemonPath)
	if err != nil {
		return nil, err
	}

	return card.NewWatcher(readers, cfg.Card.PollInterval, cfg.Card.TransceiveTimeout), nil
}
