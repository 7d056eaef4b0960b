package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/api/router"
	"github.com/SafeMPC/card-bridge/internal/config"
	"github.com/SafeMPC/card-bridge/internal/util/command"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// New 启动桥接服务：HTTP 管理接口、dApp WebSocket 与读卡器轮询
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Starts the card bridge",
		Long: `Starts the management API, the dApp pairing websocket and the
card reader loop. Runs until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := command.LoadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
}

func run(cfg config.Server) error {
	command.ConfigureLogger(cfg)

	s, err := api.InitNewServer(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize server")
		return err
	}

	router.Init(s)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("address", cfg.Management.ListenAddress).Msg("Starting server")
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to start server")
			return err
		}
		return nil
	})

	cardDone := make(chan struct{})
	g.Go(func() error {
		defer close(cardDone)
		if err := s.RunCardLoop(gctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Card loop stopped")
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		<-cardDone

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Management.ShutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if errs := s.Shutdown(shutdownCtx); len(errs) > 0 {
			log.Error().Errs("shutdownErrors", errs).Msg("Failed to gracefully shut down server")
		}
		return nil
	})

	return g.Wait()
}
