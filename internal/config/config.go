// Package config loads client configuration from the environment.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config holds everything the SDK needs to reach the backend and persist
// credentials locally.
type Config struct {
	BaseURL         string        `env:"SHIFTLY_BASE_URL" envDefault:"https://api.shiftly.example.com"`
	HTTPTimeout     time.Duration `env:"SHIFTLY_HTTP_TIMEOUT" envDefault:"30s"`
	CredentialsPath string        `env:"SHIFTLY_CREDENTIALS_PATH"`
	LogLevel        string        `env:"SHIFTLY_LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration from environment variables. When no credentials
// path is set, a per-user default under the OS config directory is used.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "[config.Load] parse env")
	}
	if cfg.CredentialsPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Config{}, errors.Wrap(err, "[config.Load] user config dir")
		}
		cfg.CredentialsPath = filepath.Join(dir, "shiftly", "credentials")
	}
	return cfg, nil
}
