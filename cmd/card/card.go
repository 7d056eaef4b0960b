package card

import (
	"context"
	"time"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/card"
	"github.com/SafeMPC/card-bridge/internal/util/command"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	tapTimeoutFlag string = "tap-timeout"
	pinFlag        string = "pin"
)

// New 本地卡片维护命令，不启动 HTTP 服务
func New() *cobra.Command {
	cmd := command.NewSubcommandGroup("card",
		newInfo(),
		newSeed(),
		newSign(),
		newSetPIN(),
		newChangePIN(),
		newUnlock(),
	)
	cmd.PersistentFlags().Duration(tapTimeoutFlag, time.Minute, "How long to wait for a card tap")
	return cmd
}

// withTappedCard 初始化服务，等待一次刷卡后执行 f
func withTappedCard(cmd *cobra.Command, f func(ctx context.Context, s *api.Server, c card.Card) error) error {
	cfg, err := command.LoadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.Card.Enabled {
		return errors.New("card reader is disabled in the configuration")
	}

	timeout, _ := cmd.Flags().GetDuration(tapTimeoutFlag)

	return command.WithServer(cmd.Context(), cfg, func(ctx context.Context, s *api.Server) error {
		tapCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		log.Info().Msg("Waiting for card tap")
		c, err := s.Watcher.WaitForTap(tapCtx)
		if err != nil {
			return err
		}

		return f(ctx, s, c)
	})
}
