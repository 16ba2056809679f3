// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	appConfigDirName = "cant-stop-odds"
	dbFileName       = "odds.db"
)

// Config holds the oddsd settings.
type Config struct {
	Addr           string        `env:"ODDS_ADDR"            envDefault:"127.0.0.1:8088"`
	DBPath         string        `env:"ODDS_DB_PATH"`
	RulesURL       string        `env:"ODDS_RULES_URL"`
	CacheSize      int           `env:"ODDS_CACHE_SIZE"      envDefault:"512"`
	RequestTimeout time.Duration `env:"ODDS_REQUEST_TIMEOUT" envDefault:"30s"`
	SweepTimeout   time.Duration `env:"ODDS_SWEEP_TIMEOUT"   envDefault:"10s"`
	AlertScript    string        `env:"ODDS_ALERT_SCRIPT"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment and fills in derived defaults.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(AppDataDir(), dbFileName)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("ODDS_ADDR must not be empty")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("ODDS_CACHE_SIZE must not be negative, got %d", c.CacheSize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("ODDS_REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.SweepTimeout <= 0 {
		return fmt.Errorf("ODDS_SWEEP_TIMEOUT must be positive, got %s", c.SweepTimeout)
	}
	return nil
}

// AppDataDir returns an OS-appropriate writable directory.
func AppDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, appConfigDirName)
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, "."+appConfigDirName)
	}
	return "."
}
