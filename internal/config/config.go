// Package config provides configuration management for the rotation
// scheduler with hot-reload support. It uses fsnotify to watch for file
// changes and atomic pointer swaps for zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete scheduler configuration.
type Config struct {
	Credentials []CredentialConfig `yaml:"credentials"`
	RateLimit   RateLimitConfig    `yaml:"rate_limit"`
	Redis       RedisConfig        `yaml:"redis"`
	Logging     LoggingConfig      `yaml:"logging"`
	Metrics     MetricsConfig      `yaml:"metrics"`
}

// CredentialConfig defines one rate-limited credential.
type CredentialConfig struct {
	ID     string `yaml:"id"`
	Secret string `yaml:"secret"`
	// Limit overrides rate_limit.requests for this credential when > 0.
	Limit int `yaml:"limit"`
}

// RateLimitConfig defines the default per-credential window.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"` // per window
	Window   time.Duration `yaml:"window"`
}

// RedisConfig enables the shared usage mirror for multi-process
// deployments using the same credentials.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RateLimit: RateLimitConfig{
			Requests: 60,
			Window:   time.Minute,
		},
		Redis: RedisConfig{
			KeyPrefix: "keywheel:usage:",
			Timeout:   100 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadFromFile reads and validates a yaml configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator.
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Load(data)
}

// Load parses and validates yaml configuration bytes.
func Load(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for startup-time errors.
func (c *Config) Validate() error {
	if len(c.Credentials) == 0 {
		return fmt.Errorf("config: no credentials configured")
	}

	seen := make(map[string]struct{}, len(c.Credentials))
	for i, cred := range c.Credentials {
		if cred.ID == "" {
			return fmt.Errorf("config: credentials[%d]: id is required", i)
		}
		if _, dup := seen[cred.ID]; dup {
			return fmt.Errorf("config: duplicate credential id %q", cred.ID)
		}
		seen[cred.ID] = struct{}{}
		if cred.Limit < 0 {
			return fmt.Errorf("config: credential %q: limit must not be negative", cred.ID)
		}
	}

	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("config: rate_limit.requests must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("config: rate_limit.window must be positive")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	return nil
}

// LimitFor returns the window limit for one credential, falling back to
// the shared default.
func (c *Config) LimitFor(id string) int {
	for _, cred := range c.Credentials {
		if cred.ID == id && cred.Limit > 0 {
			return cred.Limit
		}
	}
	return c.RateLimit.Requests
}
