// Package config loads daemon configuration from ~/.mindpal/config.toml with
// secrets overlaid from the environment (optionally seeded by a .env file).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the daemon configuration.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	Avatar  AvatarConfig  `toml:"avatar"`
	Network NetworkConfig `toml:"network"`
	Retry   RetryConfig   `toml:"retry"`
	Tier    TierConfig    `toml:"tier"`
}

// BackendConfig points at the managed data/auth service.
type BackendConfig struct {
	URL     string `toml:"url"`
	AnonKey string `toml:"-"` // env only, never written to disk
}

// AvatarConfig points at the conversational-avatar provider.
type AvatarConfig struct {
	URL       string `toml:"url"`
	APIKey    string `toml:"-"` // env only
	ReplicaID string `toml:"replica_id"`
}

// NetworkConfig tunes the connectivity monitor.
type NetworkConfig struct {
	ProbeIntervalSeconds int `toml:"probe_interval_seconds"`
	ProbeTimeoutSeconds  int `toml:"probe_timeout_seconds"`
}

// RetryConfig is the default policy applied to backend calls.
type RetryConfig struct {
	MaxAttempts     int     `toml:"max_attempts"`
	BaseDelayMillis int     `toml:"base_delay_ms"`
	Multiplier      float64 `toml:"multiplier"`
}

// TierConfig holds the session-duration policy. These values are product
// policy, kept as configuration rather than hard-coded logic.
type TierConfig struct {
	FreeMaxSeconds       int `toml:"free_max_seconds"`
	PrivilegedMaxSeconds int `toml:"privileged_max_seconds"`
	FreeCooldownHours    int `toml:"free_cooldown_hours"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Avatar: AvatarConfig{
			URL: "https://tavusapi.com",
		},
		Network: NetworkConfig{
			ProbeIntervalSeconds: 30,
			ProbeTimeoutSeconds:  5,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			BaseDelayMillis: 1000,
			Multiplier:      2.0,
		},
		Tier: TierConfig{
			FreeMaxSeconds:       300,
			PrivilegedMaxSeconds: 3600,
			FreeCooldownHours:    24,
		},
	}
}

// Load reads config from the given path, merging file values over defaults
// and environment secrets over both. envPath is loaded via godotenv when it
// exists; already-set environment variables win.
func Load(path, envPath string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	if envPath != "" {
		// Ignore a missing .env; env vars may be set by other means.
		_ = godotenv.Load(envPath)
	}
	if v := os.Getenv("MINDPAL_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	cfg.Backend.AnonKey = os.Getenv("MINDPAL_BACKEND_ANON_KEY")
	if v := os.Getenv("MINDPAL_AVATAR_URL"); v != "" {
		cfg.Avatar.URL = v
	}
	cfg.Avatar.APIKey = os.Getenv("MINDPAL_AVATAR_API_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the non-secret config to the given path, creating parent dirs
// as needed.
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

// Validate checks invariants the services rely on.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1")
	}
	if c.Network.ProbeIntervalSeconds <= 0 {
		return fmt.Errorf("network.probe_interval_seconds must be > 0")
	}
	if c.Network.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("network.probe_timeout_seconds must be > 0")
	}
	if c.Tier.FreeMaxSeconds <= 0 || c.Tier.PrivilegedMaxSeconds <= 0 {
		return fmt.Errorf("tier durations must be > 0")
	}
	return nil
}

// ProbeInterval returns the monitor re-probe cadence.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Network.ProbeIntervalSeconds) * time.Second
}

// ProbeTimeout returns the per-probe deadline.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Network.ProbeTimeoutSeconds) * time.Second
}

// BaseDelay returns the retry base delay.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMillis) * time.Millisecond
}

// FreeCooldown returns the wait between free-tier sessions.
func (c *Config) FreeCooldown() time.Duration {
	return time.Duration(c.Tier.FreeCooldownHours) * time.Hour
}
