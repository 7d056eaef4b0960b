package api

import (
	"context"
	"errors"
	"net/http"

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
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Router struct {
	Routes     []*echo.Route
	Root       *echo.Group
	Management *echo.Group
	APIV1      *echo.Group
	Pairing    *echo.Group
}

// Server is a central struct keeping all the dependencies.
// It is initialized with wire, which handles making the new instances of the components
// in the right order. To add a new component, 3 steps are required:
// - declaring it in this struct
// - adding a provider function in providers.go
// - adding the provider's function name to the arguments of wire.Build() in wire.go
//
// Components labeled as `wire:"-"` will be skipped and have to be initialized after the InitNewServer* call.
type Server struct {
	Config     config.Server
	Echo       *echo.Echo     `wire:"-"`
	Router     *Router        `wire:"-"`
	Health     *HealthChecker `wire:"-"`
	Clock      time2.Clock
	Metrics    *metrics.Service
	Redis      *redis.Client // nil 时账本使用内存存储
	Chains     *chain.Registry
	Keys       *key.Service
	Signer     signing.Signer
	Bridge     *signing.Bridge
	Ledger     *storage.CounterLedger
	Requests   *request.Factory
	Sessions   *pairing.SessionManager
	Dispatcher *pairing.Dispatcher
	Watcher    *card.Watcher // 读卡器关闭时为 nil
}

// newServerWithComponents is used by wire to initialize the server components.
// Any components not explicitly mentioned here will NOT be initialized for a new server.
func newServerWithComponents(
	cfg config.Server,
	clock time2.Clock,
	metricsService *metrics.Service,
	redisClient *redis.Client,
	chains *chain.Registry,
	keys *key.Service,
	signer signing.Signer,
	bridge *signing.Bridge,
	ledger *storage.CounterLedger,
	requests *request.Factory,
	sessions *pairing.SessionManager,
	dispatcher *pairing.Dispatcher,
	watcher *card.Watcher,
) *Server {
	// 没有待签请求时刷卡只刷新账户
	bridge.SetIdleHandler(keys.HandleIdleTap)
	bridge.AddObserver(ledger)

	s := &Server{
		Config:     cfg,
		Clock:      clock,
		Metrics:    metricsService,
		Redis:      redisClient,
		Chains:     chains,
		Keys:       keys,
		Signer:     signer,
		Bridge:     bridge,
		Ledger:     ledger,
		Requests:   requests,
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Watcher:    watcher,
	}
	s.Health = NewHealthChecker(s)

	return s
}

func (s *Server) Ready() bool {
	return s.Echo != nil &&
		s.Router != nil &&
		s.Bridge != nil &&
		s.Dispatcher != nil &&
		(s.Watcher != nil || !s.Config.Card.Enabled)
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	s.Echo.Server.ReadTimeout = s.Config.Management.ReadTimeout

	return s.Echo.Start(s.Config.Management.ListenAddress)
}

// RunCardLoop 把每次刷卡交给签名桥，直到 ctx 结束
func (s *Server) RunCardLoop(ctx context.Context) error {
	if s.Watcher == nil {
		log.Warn().Msg("Card reader disabled, signing requests will never complete")
		<-ctx.Done()
		return nil
	}

	return s.Watcher.Run(ctx, func(ctx context.Context, c card.Card) {
		s.Bridge.HandleTap(ctx, c)
	})
}

// Shutdown 取消待签请求并释放全部资源，必须在 RunCardLoop 返回之后调用
func (s *Server) Shutdown(ctx context.Context) []error {
	var errs []error

	if s.Bridge != nil {
		s.Bridge.Cancel(ctx, "bridge shutting down")
	}

	if s.Echo != nil {
		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown echo server")
			errs = append(errs, err)
		}
	}

	if s.Watcher != nil {
		if err := s.Watcher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to release card reader context")
			errs = append(errs, err)
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis client")
			errs = append(errs, err)
		}
	}

	return errs
}
