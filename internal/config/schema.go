package config

import (
	"time"

	"smallarea/internal/domain"
)

// Config is the on-disk configuration of the estimation server
type Config struct {
	Version    int              `yaml:"version"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Estimation EstimationConfig `yaml:"estimation"`
	Watch      []WatchTarget    `yaml:"watch,omitempty"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64    `yaml:"max_upload_bytes"`
	CORSOrigin      string   `yaml:"cors_origin,omitempty"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EstimationConfig holds estimator defaults
type EstimationConfig struct {
	DefaultScenario   domain.Scenario `yaml:"default_scenario"`
	Parallelism       int             `yaml:"parallelism"`
	RejectZeroWeights bool            `yaml:"reject_zero_weights"`
}

// WatchTarget is a survey file pair that is re-imported and re-estimated
// whenever either file changes
type WatchTarget struct {
	Name         string          `yaml:"name"`
	Observations string          `yaml:"observations"`
	Frame        string          `yaml:"frame,omitempty"`
	Scenario     domain.Scenario `yaml:"scenario,omitempty"`
}

// LogConfig selects the log handler
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
