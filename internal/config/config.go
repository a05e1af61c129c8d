package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up when no --config flag is given.
const FileName = "invoicer.yaml"

// Config represents the top-level invoicer.yaml configuration. Every key
// can be overridden by an INVOICER_* environment variable.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Invoice  InvoiceConfig  `yaml:"invoice"`
	Session  SessionConfig  `yaml:"session"`
	Activity ActivityConfig `yaml:"activity"`
	Log      LogConfig      `yaml:"log"`
}

// APIConfig locates the invoicing backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"INVOICER_API_URL"`
	Timeout time.Duration `yaml:"timeout" env:"INVOICER_API_TIMEOUT"`
}

// InvoiceConfig holds editor defaults.
type InvoiceConfig struct {
	TaxRate  string        `yaml:"tax_rate" env:"INVOICER_TAX_RATE"` // decimal, e.g. "0.01"
	FlashTTL time.Duration `yaml:"flash_ttl" env:"INVOICER_FLASH_TTL"`
	Locale   string        `yaml:"locale" env:"INVOICER_LOCALE"` // BCP 47 tag for printed amounts
}

// SessionConfig controls where the login session is kept.
type SessionConfig struct {
	Path string `yaml:"path" env:"INVOICER_SESSION_PATH"`
}

// ActivityConfig controls the local activity log.
type ActivityConfig struct {
	Path string `yaml:"path" env:"INVOICER_ACTIVITY_PATH"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"INVOICER_LOG_LEVEL"`
	Format string `yaml:"format" env:"INVOICER_LOG_FORMAT"` // "console" or "json"
}

// Load reads an invoicer.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Resolve loads path if it exists, falls back to defaults otherwise, and
// applies environment overrides on top.
func Resolve(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any INVOICER_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults. Local state lives under
// the user's config directory.
func Default() *Config {
	dir := "."
	if base, err := os.UserConfigDir(); err == nil {
		dir = filepath.Join(base, "invoicer")
	}
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Invoice: InvoiceConfig{
			TaxRate:  "0.01",
			FlashTTL: 5 * time.Second,
			Locale:   "en-US",
		},
		Session:  SessionConfig{Path: filepath.Join(dir, "session.db")},
		Activity: ActivityConfig{Path: filepath.Join(dir, "activity.csv")},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
