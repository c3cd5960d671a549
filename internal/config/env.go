package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"smallarea/internal/domain"
)

// envOverrides are read from the process environment after the config file.
// Unset variables leave the file values untouched.
type envOverrides struct {
	Addr            string `env:"SAE_ADDR"`
	DBPath          string `env:"SAE_DB_PATH"`
	LogLevel        string `env:"SAE_LOG_LEVEL"`
	LogFormat       string `env:"SAE_LOG_FORMAT"`
	Parallelism     int    `env:"SAE_PARALLELISM"`
	DefaultScenario string `env:"SAE_DEFAULT_SCENARIO"`
}

// ApplyEnv overlays SAE_* environment variables onto the config
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.Addr != "" {
		c.Server.Addr = o.Addr
	}
	if o.DBPath != "" {
		c.Database.Path = o.DBPath
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Log.Format = o.LogFormat
	}
	if o.Parallelism != 0 {
		c.Estimation.Parallelism = o.Parallelism
	}
	if o.DefaultScenario != "" {
		s, err := domain.ParseScenario(o.DefaultScenario)
		if err != nil {
			return fmt.Errorf("SAE_DEFAULT_SCENARIO: %w", err)
		}
		c.Estimation.DefaultScenario = s
	}
	return nil
}
