package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SALEENGINE_* environment variable overrides,
// and returns the final Config. An empty path skips the file and uses
// defaults plus environment overrides only. The returned Config has NOT
// been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SALEENGINE_* environment variables
// and overwrites the corresponding Config fields when a variable is set.
// This lets operators inject connection strings at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Server.Port, "SALEENGINE_PORT")
	setStr(&cfg.Server.Port, "PORT") // compatibility alias

	setStr(&cfg.Database.URL, "SALEENGINE_DATABASE_URL")
	setStr(&cfg.Database.URL, "DATABASE_URL") // compatibility alias

	setStr(&cfg.Redis.URL, "SALEENGINE_REDIS_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL") // compatibility alias
	setInt(&cfg.Redis.CacheTTLSec, "SALEENGINE_REDIS_CACHE_TTL_SEC")

	setStr(&cfg.Registry.HardCapFloor, "SALEENGINE_HARD_CAP_FLOOR")
	setStr(&cfg.Registry.MaxSaleDuration, "SALEENGINE_MAX_SALE_DURATION")
	setInt64(&cfg.Registry.FeePercent, "SALEENGINE_FEE_PERCENT")
	setStr(&cfg.Registry.FeeRecipient, "SALEENGINE_FEE_RECIPIENT")

	setStr(&cfg.Limits.MaxPerPool, "SALEENGINE_MAX_PER_POOL")
	setStr(&cfg.Limits.MaxPerOperator, "SALEENGINE_MAX_PER_OPERATOR")

	setStr(&cfg.Eligibility.Mode, "SALEENGINE_ELIGIBILITY_MODE")
	setStr(&cfg.Eligibility.RedisKey, "SALEENGINE_ELIGIBILITY_REDIS_KEY")

	setStr(&cfg.LogLevel, "SALEENGINE_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
