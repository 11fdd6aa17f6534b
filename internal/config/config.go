package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/coffersTech/nanosearch/internal/auth"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used by `nanosearch init`.
const DefaultPath = "nanosearch.yaml"

var ErrNoTokens = errors.New("require_auth is set but no tokens are configured")

// Config holds the server and engine settings.
type Config struct {
	Listen          string        `yaml:"listen"`
	DataDir         string        `yaml:"data_dir"`
	Retention       time.Duration `yaml:"retention"` // 0 keeps data forever
	CleanerInterval time.Duration `yaml:"cleaner_interval"`
	MaxTableSize    int64         `yaml:"max_table_size"` // bytes
	DefaultLimit    int           `yaml:"default_limit"`
	MaxLimit        int           `yaml:"max_limit"`
	RequireAuth     bool          `yaml:"require_auth"`
	Tokens          []auth.Token  `yaml:"tokens,omitempty"`
	Log             LogConfig     `yaml:"log"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:          ":8088",
		DataDir:         "./data",
		Retention:       7 * 24 * time.Hour,
		CleanerInterval: time.Hour,
		MaxTableSize:    64 * 1024 * 1024,
		DefaultLimit:    100,
		MaxLimit:        10000,
		Log:             LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies the
// NANOSEARCH_* environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()

		if err := Decode(f, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Decode reads YAML into cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Save writes cfg as YAML to path.
func (c Config) Save(path string) error {
	d, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, d, 0600)
}

func (c *Config) applyEnv() error {
	c.Listen = getEnv("NANOSEARCH_LISTEN", c.Listen)
	c.DataDir = getEnv("NANOSEARCH_DATA_DIR", c.DataDir)
	c.Log.Level = getEnv("NANOSEARCH_LOG_LEVEL", c.Log.Level)

	if v, ok := os.LookupEnv("NANOSEARCH_RETENTION"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NANOSEARCH_RETENTION: %w", err)
		}
		c.Retention = d
	}
	return nil
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is empty")
	}
	if c.DataDir == "" {
		return errors.New("data_dir is empty")
	}
	if c.Retention < 0 {
		return fmt.Errorf("retention must not be negative, got %s", c.Retention)
	}
	if c.Retention > 0 && c.CleanerInterval <= 0 {
		return fmt.Errorf("cleaner_interval must be positive, got %s", c.CleanerInterval)
	}
	if c.MaxTableSize <= 0 {
		return fmt.Errorf("max_table_size must be positive, got %d", c.MaxTableSize)
	}
	if c.DefaultLimit <= 0 || c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("need 0 < default_limit <= max_limit, got %d and %d", c.DefaultLimit, c.MaxLimit)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.RequireAuth && len(c.Tokens) == 0 {
		return ErrNoTokens
	}
	for _, t := range c.Tokens {
		if t.Name == "" {
			return errors.New("token without name")
		}
		if _, err := auth.ParseScope(string(t.Scope)); err != nil {
			return fmt.Errorf("token %q: %w", t.Name, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
