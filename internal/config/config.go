// Package config loads shiftclock settings from ~/.shiftclock/config.yaml with
// environment overrides, and the read-only job catalog the service serves.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aceteam-ai/shiftclock/internal/tzconv"
)

// Config errors
var (
	// ErrInvalidServerURL indicates an empty service URL
	ErrInvalidServerURL = errors.New("server URL is required")

	// ErrInvalidRateLimit indicates a non-positive rate or burst
	ErrInvalidRateLimit = errors.New("rate limit must be positive")
)

// Config is the client and service configuration.
type Config struct {
	// Server is the time log service base URL
	Server string `yaml:"server"`

	// APIKey is sent as a bearer token (optional)
	APIKey string `yaml:"api_key,omitempty"`

	// Zone is the viewer's zone: an IANA name, a catalog label, or "Local"
	Zone string `yaml:"zone,omitempty"`

	Serve ServeConfig `yaml:"serve"`
}

// ServeConfig configures the reference service.
type ServeConfig struct {
	// Addr is the listen address
	Addr string `yaml:"addr"`

	// DatabaseURL is a SQLite path or a postgres:// DSN
	DatabaseURL string `yaml:"database_url"`

	// RedisURL enables event fan-out and the completed-log stream (optional)
	RedisURL string `yaml:"redis_url,omitempty"`

	// Catalog is the job catalog YAML file
	Catalog string `yaml:"catalog"`

	// APIKeys accepted as bearer tokens. Empty disables authentication.
	APIKeys []string `yaml:"api_keys,omitempty"`

	// RateLimitRPS is the per-client rate for mutating requests
	RateLimitRPS float64 `yaml:"rate_limit_rps"`

	// RateLimitBurst is the per-client burst for mutating requests
	RateLimitBurst int `yaml:"rate_limit_burst"`

	// SyncInterval is how often completed logs are pushed downstream
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// Dir returns the shiftclock home directory. SHIFTCLOCK_HOME overrides
// ~/.shiftclock.
func Dir() string {
	if dir := os.Getenv("SHIFTCLOCK_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shiftclock"
	}
	return filepath.Join(home, ".shiftclock")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns a Config with defaults and no environment applied.
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		Server: "http://localhost:8787",
		Zone:   "Local",
		Serve: ServeConfig{
			Addr:           ":8787",
			DatabaseURL:    filepath.Join(dir, "ledger.db"),
			Catalog:        filepath.Join(dir, "jobs.yaml"),
			RateLimitRPS:   5,
			RateLimitBurst: 10,
			SyncInterval:   60 * time.Second,
		},
	}
}

// Load reads path (the default location when empty), falling back to
// defaults when the file does not exist, then applies the environment.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from SHIFTCLOCK_SERVER, SHIFTCLOCK_API_KEY,
// SHIFTCLOCK_ZONE, SHIFTCLOCK_ADDR, DATABASE_URL, REDIS_URL and
// SHIFTCLOCK_RATE_LIMIT_RPS.
func (c *Config) ApplyEnv() {
	c.Server = getEnvOrDefault("SHIFTCLOCK_SERVER", c.Server)
	c.APIKey = getEnvOrDefault("SHIFTCLOCK_API_KEY", c.APIKey)
	c.Zone = getEnvOrDefault("SHIFTCLOCK_ZONE", c.Zone)
	c.Serve.Addr = getEnvOrDefault("SHIFTCLOCK_ADDR", c.Serve.Addr)
	c.Serve.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.Serve.DatabaseURL)
	c.Serve.RedisURL = getEnvOrDefault("REDIS_URL", c.Serve.RedisURL)
	c.Serve.Catalog = getEnvOrDefault("SHIFTCLOCK_CATALOG", c.Serve.Catalog)
	c.Serve.RateLimitRPS = getEnvFloat("SHIFTCLOCK_RATE_LIMIT_RPS", c.Serve.RateLimitRPS)
}

// Validate checks the fields the client and service depend on.
func (c *Config) Validate() error {
	if c.Server == "" {
		return ErrInvalidServerURL
	}
	if c.Serve.RateLimitRPS <= 0 || c.Serve.RateLimitBurst <= 0 {
		return ErrInvalidRateLimit
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Zone.
func (c *Config) Location() (*time.Location, error) {
	return tzconv.LookupZone(c.Zone)
}

// Save writes the config to path, creating the directory.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFloat returns the environment variable as a float or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
