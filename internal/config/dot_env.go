package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/subosito/gotenv"
)

// DotEnvTryLoad forcefully overrides ENV variables through **a maybe available** .env file.
// Missing files are silently ignored, malformed files are fatal.
func DotEnvTryLoad(absolutePathToEnvFile string, setEnvFn func(k string, v string) error) {
	err := DotEnvLoad(absolutePathToEnvFile, setEnvFn)

	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			log.Fatal().Err(err).Str("envFile", absolutePathToEnvFile).Msg(".env parse error!")
		}
		return
	}

	log.Warn().Str("envFile", absolutePathToEnvFile).Msg(".env overrides ENV variables!")
}

// DotEnvLoad forcefully overrides ENV variables through the supplied .env file.
func DotEnvLoad(absolutePathToEnvFile string, setEnvFn func(k string, v string) error) error {
	if setEnvFn == nil {
		setEnvFn = os.Setenv
	}

	file, err := os.Open(absolutePathToEnvFile)
	if err != nil {
		return errors.WithStack(err)
	}
	defer file.Close()

	envs, err := gotenv.StrictParse(file)
	if err != nil {
		return errors.Wrapf(err, "failed to parse %s", absolutePathToEnvFile)
	}

	for key, value := range envs {
		if err := setEnvFn(key, value); err != nil {
			return errors.Wrapf(err, "failed to set env %s", key)
		}
	}

	return nil
}
