package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SafeMPC/card-bridge/internal/config"
	"github.com/SafeMPC/card-bridge/internal/util/command"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	verboseFlag string = "verbose"
	timeoutFlag string = "timeout"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("probe",
		newLiveness(),
		newReadiness(),
	)
}

// newProbe 对运行中的服务请求 path，非 2xx 时以非零状态退出
func newProbe(use string, short string, path string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := command.LoadConfig(cmd)
			if err != nil {
				return err
			}
			command.ConfigureLogger(cfg)

			verbose, _ := cmd.Flags().GetBool(verboseFlag)
			timeout, _ := cmd.Flags().GetDuration(timeoutFlag)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			body, err := probe(ctx, probeURL(cfg, path))
			if verbose && body != "" {
				fmt.Println(body)
			}
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("Probe failed")
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolP(verboseFlag, "v", false, "Print the probe response")
	cmd.Flags().Duration(timeoutFlag, 5*time.Second, "Probe timeout")

	return cmd
}

func newLiveness() *cobra.Command {
	return newProbe("liveness", "Checks that the bridge process answers HTTP", "/health/live")
}

func newReadiness() *cobra.Command {
	return newProbe("readiness", "Checks that the card reader and ledger are usable", "/health/ready")
}

// probeURL 监听 0.0.0.0 或 :port 时改走回环地址
func probeURL(cfg config.Server, path string) string {
	host := cfg.Management.ListenAddress
	switch {
	case strings.HasPrefix(host, ":"):
		host = "127.0.0.1" + host
	case strings.HasPrefix(host, "0.0.0.0:"):
		host = "127.0.0.1" + strings.TrimPrefix(host, "0.0.0.0")
	}
	return "http://" + host + path
}

func probe(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to create probe request")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to reach server")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read probe response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return string(body), errors.Errorf("probe returned HTTP %d", resp.StatusCode)
	}
	return string(body), nil
}
