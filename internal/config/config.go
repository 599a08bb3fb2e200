// Package config defines the sale engine configuration and provides
// loading from a TOML file with SALEENGINE_* environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SALEENGINE_* environment
// variables.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	Registry    RegistryConfig    `toml:"registry"`
	Limits      LimitsConfig      `toml:"limits"`
	Eligibility EligibilityConfig `toml:"eligibility"`
	LogLevel    string            `toml:"log_level"`
}

// ServerConfig holds the HTTP listener parameters.
type ServerConfig struct {
	Port            string `toml:"port"`
	ReadTimeoutSec  int    `toml:"read_timeout_sec"`
	WriteTimeoutSec int    `toml:"write_timeout_sec"`
}

// DatabaseConfig holds the PostgreSQL connection string. Empty URL means
// the in-memory store is used.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// RedisConfig holds Redis connection parameters. Empty URL disables the
// cache layer and the Redis eligibility gate.
type RedisConfig struct {
	URL         string `toml:"url"`
	CacheTTLSec int    `toml:"cache_ttl_sec"`
}

// RegistryConfig holds the platform-level sale bounds and fee split.
type RegistryConfig struct {
	HardCapFloor    string `toml:"hard_cap_floor"`
	MaxSaleDuration string `toml:"max_sale_duration"` // Go duration string, e.g. "720h"
	FeePercent      int64  `toml:"fee_percent"`
	FeeRecipient    string `toml:"fee_recipient"`
}

// LimitsConfig holds the platform exposure ceilings. Empty or "0" values
// disable the corresponding check.
type LimitsConfig struct {
	MaxPerPool     string `toml:"max_per_pool"`
	MaxPerOperator string `toml:"max_per_operator"`
}

// EligibilityConfig selects the gate implementation.
type EligibilityConfig struct {
	// Mode is "static" (allowlist below) or "redis" (set membership).
	Mode      string   `toml:"mode"`
	RedisKey  string   `toml:"redis_key"`
	Allowlist []string `toml:"allowlist"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeoutSec:  10,
			WriteTimeoutSec: 10,
		},
		Redis: RedisConfig{
			CacheTTLSec: 30,
		},
		Registry: RegistryConfig{
			HardCapFloor:    "1000",
			MaxSaleDuration: "720h",
			FeePercent:      2,
			FeeRecipient:    "platform-fees",
		},
		Eligibility: EligibilityConfig{
			Mode:     "static",
			RedisKey: "sale:eligible",
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("config: server port is required")
	}
	if _, err := c.ParseHardCapFloor(); err != nil {
		return err
	}
	if _, err := c.ParseMaxSaleDuration(); err != nil {
		return err
	}
	if c.Registry.FeePercent < 0 || c.Registry.FeePercent > 100 {
		return fmt.Errorf("config: fee percent %d outside 0-100", c.Registry.FeePercent)
	}
	if _, _, err := c.ParseExposureLimits(); err != nil {
		return err
	}
	switch c.Eligibility.Mode {
	case "static":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("config: eligibility mode redis requires a redis url")
		}
	default:
		return fmt.Errorf("config: unknown eligibility mode %q", c.Eligibility.Mode)
	}
	return nil
}

// ParseHardCapFloor parses the configured hard-cap floor.
func (c *Config) ParseHardCapFloor() (decimal.Decimal, error) {
	floor, err := decimal.NewFromString(c.Registry.HardCapFloor)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: invalid hard cap floor %q: %w", c.Registry.HardCapFloor, err)
	}
	return floor, nil
}

// ParseMaxSaleDuration parses the configured maximum sale duration.
// Empty means unbounded.
func (c *Config) ParseMaxSaleDuration() (time.Duration, error) {
	if c.Registry.MaxSaleDuration == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Registry.MaxSaleDuration)
	if err != nil {
		return 0, fmt.Errorf("config: invalid max sale duration %q: %w", c.Registry.MaxSaleDuration, err)
	}
	return d, nil
}

// ParseExposureLimits parses the configured per-pool and per-operator
// exposure ceilings. Empty strings parse as zero, which disables the check.
func (c *Config) ParseExposureLimits() (perPool, perOperator decimal.Decimal, err error) {
	perPool, err = parseOptionalDecimal(c.Limits.MaxPerPool)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("config: invalid max per pool %q: %w", c.Limits.MaxPerPool, err)
	}
	perOperator, err = parseOptionalDecimal(c.Limits.MaxPerOperator)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("config: invalid max per operator %q: %w", c.Limits.MaxPerOperator, err)
	}
	return perPool, perOperator, nil
}

func parseOptionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
