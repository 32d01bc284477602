package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.wagate/config.toml, with WAGATE_*
// environment variables taking precedence over file values.
type Config struct {
	DefaultSession   string `toml:"default_session"`
	Listen           string `toml:"listen"`
	DefaultSpacingMs int    `toml:"default_spacing_ms"`
	ReconnectDelayMs int    `toml:"reconnect_delay_ms"`
}

// Default returns a config with the built-in defaults applied.
func Default() *Config {
	return &Config{
		Listen:           ":8080",
		DefaultSpacingMs: 1000,
		ReconnectDelayMs: 5000,
	}
}

// Load reads config from the given path and applies the environment
// overlay. A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	// A .env next to the working directory is picked up if present.
	_ = godotenv.Load()

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.DefaultSpacingMs <= 0 {
		cfg.DefaultSpacingMs = 1000
	}
	if cfg.ReconnectDelayMs <= 0 {
		cfg.ReconnectDelayMs = 5000
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WAGATE_SESSION"); v != "" {
		c.DefaultSession = v
	}
	if v := os.Getenv("WAGATE_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("WAGATE_SPACING_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.DefaultSpacingMs = n
		}
	}
	if v := os.Getenv("WAGATE_RECONNECT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ReconnectDelayMs = n
		}
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
