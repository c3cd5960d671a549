// Package config provides configuration management for the estimation server.
//
// Config file locations (priority order):
//  1. $SAE_CONFIG
//  2. ./smallarea.yaml
//  3. $XDG_CONFIG_HOME/smallarea/config.yaml
//  4. ~/.config/smallarea/config.yaml
//  5. /etc/smallarea/config.yaml
//
// SAE_* environment variables override values read from the file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"smallarea/internal/domain"
)

const (
	defaultAddr            = ":3000"
	defaultDBPath          = "./smallarea.db"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxUploadBytes  = 32 << 20
)

// Load finds and loads the config file, or returns defaults if none found.
// Environment overrides are applied in both cases.
func Load() (*Config, string, error) {
	path := FindConfigPath()

	cfg := DefaultConfig()
	if path != "" {
		loaded, _, err := LoadFromPath(path)
		if err != nil {
			return nil, path, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(defaultReadTimeout)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(defaultWriteTimeout)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(defaultShutdownTimeout)
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = defaultMaxUploadBytes
	}
	if c.Database.Path == "" {
		c.Database.Path = defaultDBPath
	}
	c.Estimation.DefaultScenario = normalizeScenario(c.Estimation.DefaultScenario)
	if c.Estimation.DefaultScenario == "" {
		c.Estimation.DefaultScenario = domain.ScenarioA
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	for i := range c.Watch {
		c.Watch[i].Scenario = normalizeScenario(c.Watch[i].Scenario)
		if c.Watch[i].Scenario == "" {
			c.Watch[i].Scenario = c.Estimation.DefaultScenario
		}
	}
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if !c.Estimation.DefaultScenario.Valid() {
		return fmt.Errorf("estimation.default_scenario: %w",
			&domain.ConfigurationError{Scenario: string(c.Estimation.DefaultScenario), Reason: "unknown scenario"})
	}
	if c.Estimation.Parallelism < 0 {
		return fmt.Errorf("estimation.parallelism must be positive, got %d", c.Estimation.Parallelism)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	names := make(map[string]bool, len(c.Watch))
	for i, w := range c.Watch {
		if w.Name == "" {
			return fmt.Errorf("watch[%d]: name is required", i)
		}
		if names[w.Name] {
			return fmt.Errorf("watch[%d]: duplicate name %q", i, w.Name)
		}
		names[w.Name] = true
		if w.Observations == "" {
			return fmt.Errorf("watch[%d]: observations path is required", i)
		}
		if !w.Scenario.Valid() {
			return fmt.Errorf("watch[%d]: unknown scenario %q", i, w.Scenario)
		}
		if w.Scenario.RequiresFrame() && w.Frame == "" && !embedsFrame(w.Observations) {
			return fmt.Errorf("watch[%d]: scenario %s requires a frame file", i, w.Scenario)
		}
	}
	return nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	parallelism := "auto"
	if c.Estimation.Parallelism > 0 {
		parallelism = fmt.Sprintf("%d", c.Estimation.Parallelism)
	}
	summary := fmt.Sprintf("Addr: %s, Database: %s\n", c.Server.Addr, c.Database.Path)
	summary += fmt.Sprintf("Default scenario: %s, Parallelism: %s, Reject zero weights: %v\n",
		c.Estimation.DefaultScenario, parallelism, c.Estimation.RejectZeroWeights)
	summary += fmt.Sprintf("Watched surveys (%d):", len(c.Watch))
	for _, w := range c.Watch {
		summary += fmt.Sprintf(" %s", w.Name)
	}
	return summary
}

// NewLogger builds a slog logger writing to w in the configured format
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

func normalizeScenario(s domain.Scenario) domain.Scenario {
	return domain.Scenario(strings.ToUpper(strings.TrimSpace(string(s))))
}

// YAML and JSON survey documents may carry their own frame
func embedsFrame(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".json")
}
