package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// LoadEnv overlays environment values onto cfg. environ replaces the
// process environment when non-nil. Unset and empty variables keep the
// current value.
func LoadEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
