package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable name declared in an env tag.
const EnvPrefix = "HOSZ_"

// ParseEnv fills target from HOSZ_* variables. Tags name the variable
// without the prefix, so `env:"STORE_PATH"` reads HOSZ_STORE_PATH.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse %s environment: %w", EnvPrefix, err)
	}
	return nil
}
