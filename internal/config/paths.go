package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath names an explicit config file
	EnvConfigPath = "SAE_CONFIG"
	// ConfigFileName is looked up in the working directory
	ConfigFileName = "smallarea.yaml"
	// ConfigDirName is the directory under the XDG, home and /etc roots
	ConfigDirName = "smallarea"
)

// searchPaths lists the config candidates in priority order. Empty entries
// stand for unset variables.
func searchPaths() []string {
	paths := []string{os.Getenv(EnvConfigPath), ConfigFileName}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, ConfigDirName, "config.yaml"))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", ConfigDirName, "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", ConfigDirName, "config.yaml"))
}

// FindConfigPath returns the first existing config file, or "" when there
// is none. Relative hits are made absolute.
func FindConfigPath() string {
	for _, path := range searchPaths() {
		if path == "" || !fileExists(path) {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return ""
}

// DefaultConfigPath returns where a new config file is written: the XDG
// config home, then ~/.config, then the working directory
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, ConfigDirName, "config.yaml")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", ConfigDirName, "config.yaml")
	}
	return ConfigFileName
}

// EnsureConfigDir creates the directory holding configPath
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
