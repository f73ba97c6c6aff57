package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the API server settings, loaded from an optional YAML file.
type Config struct {
	Addr     string `yaml:"addr"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in server configuration.
func Default() Config {
	return Config{
		Addr:     ":8080",
		DBPath:   "regrid.db",
		LogLevel: "info",
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}
