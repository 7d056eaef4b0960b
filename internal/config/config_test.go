package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SafeMPC/card-bridge/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultServiceConfigFromEnv(t *testing.T) {
	cfg := config.DefaultServiceConfigFromEnv()

	assert.Equal(t, uint8(1), cfg.Card.KeyHandle)
	assert.Equal(t, 30*time.Second, cfg.Card.TransceiveTimeout)
	assert.False(t, cfg.Bridge.RejectSuperseded)
	require.Len(t, cfg.Chains, 2)
	assert.Equal(t, "1", cfg.Chains[0].Reference)
	assert.Equal(t, "5", cfg.Chains[1].Reference)
	assert.Empty(t, cfg.Ledger.RedisAddress)
}

func TestDefaultServiceConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("CARD_BRIDGE_BRIDGE_REJECT_SUPERSEDED", "true")
	t.Setenv("CARD_BRIDGE_CARD_KEY_HANDLE", "3")
	t.Setenv("CARD_BRIDGE_LOGGER_LEVEL", "debug")

	cfg := config.DefaultServiceConfigFromEnv()
	assert.True(t, cfg.Bridge.RejectSuperseded)
	assert.Equal(t, uint8(3), cfg.Card.KeyHandle)
	assert.Equal(t, zerolog.DebugLevel, cfg.Logger.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card-bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logger:
  level: warn
card:
  key_handle: 2
  transceive_timeout: 5s
bridge:
  reject_superseded: true
chains:
  - name: Local
    namespace: eip155
    reference: "1337"
    rpc_endpoint: http://127.0.0.1:8545
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, zerolog.WarnLevel, cfg.Logger.Level)
	assert.Equal(t, uint8(2), cfg.Card.KeyHandle)
	assert.Equal(t, 5*time.Second, cfg.Card.TransceiveTimeout)
	assert.True(t, cfg.Bridge.RejectSuperseded)
	require.Len(t, cfg.Chains, 1)
	assert.Equal(t, "1337", cfg.Chains[0].Reference)
	// 文件未覆盖的字段保持默认值
	assert.Equal(t, "127.0.0.1:8080", cfg.Management.ListenAddress)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDotEnvLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.local")
	require.NoError(t, os.WriteFile(path, []byte("CARD_BRIDGE_CARD_PIN=1234\nCARD_BRIDGE_CARD_ENABLED=false\n"), 0o600))

	envs := map[string]string{}
	err := config.DotEnvLoad(path, func(k string, v string) error {
		envs[k] = v
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "1234", envs["CARD_BRIDGE_CARD_PIN"])
	assert.Equal(t, "false", envs["CARD_BRIDGE_CARD_ENABLED"])

	err = config.DotEnvLoad(filepath.Join(t.TempDir(), "nope"), nil)
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}
