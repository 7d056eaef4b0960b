package test

import (
	"context"
	"testing"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/api/router"
	"github.com/SafeMPC/card-bridge/internal/config"
	"github.com/rs/zerolog"
)

// TestConfig 测试用配置：关闭读卡器，内存账本，链不配置 RPC
func TestConfig() config.Server {
	cfg := config.DefaultServiceConfigFromEnv()

	cfg.Logger.Level = zerolog.DebugLevel
	cfg.Card.Enabled = false
	cfg.Ledger.RedisAddress = ""
	cfg.Pairing.AutoApproveSessions = true
	cfg.Chains = []config.Chain{
		{Name: "Ethereum", Namespace: "eip155", Reference: "1"},
		{Name: "Ethereum Goerli", Namespace: "eip155", Reference: "5"},
	}

	return cfg
}

// WithTestServer returns a fully configured server (using the default server config).
func WithTestServer(t *testing.T, closure func(s *api.Server)) {
	t.Helper()
	WithTestServerConfigurable(t, TestConfig(), closure)
}

// WithTestServerConfigurable returns a fully configured server, allowing for configuration using the provided server config.
// 读卡器由测试自己驱动：直接把 cardtest.Card 交给 s.Bridge.HandleTap
func WithTestServerConfigurable(t *testing.T, cfg config.Server, closure func(s *api.Server)) {
	t.Helper()

	s, err := api.InitNewServerWithWatcher(cfg, nil, t)
	if err != nil {
		t.Fatalf("failed to init server: %v", err)
	}

	router.Init(s)

	closure(s)

	if errs := s.Shutdown(context.Background()); len(errs) > 0 {
		t.Fatalf("failed to shutdown server: %v", errs)
	}
}
