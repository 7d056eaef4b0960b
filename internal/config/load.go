package config

import (
	"strings"

	"github.com/SafeMPC/card-bridge/internal/util"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Load 在环境变量默认值之上叠加配置文件（YAML/TOML/JSON），path 为空时只使用默认值
func Load(path string) (Server, error) {
	cfg := DefaultServiceConfigFromEnv()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(strings.TrimSuffix(EnvPrefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, errors.Wrapf(err, "failed to read config file %s", path)
	}

	if v.IsSet("chains") {
		cfg.Chains = nil
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to decode config")
	}

	// zerolog.Level 是整数，按名称单独解析
	if v.IsSet("logger.level") {
		cfg.Logger.Level = util.LogLevelFromString(v.GetString("logger.level"))
	}

	return cfg, nil
}
