package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load merges the TOML file at path over Defaults and applies environment
// overrides. An empty path skips the file. The result is not validated; call
// Validate after Load.
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

// applyEnvOverrides reads FUNDLEDGER_* variables, plus the PORT,
// DATABASE_URL and REDIS_URL variables common to container platforms, and
// overwrites the matching fields when set.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "PORT")
	setInt(&cfg.Server.Port, "FUNDLEDGER_SERVER_PORT")
	setDuration(&cfg.Server.RequestTimeout, "FUNDLEDGER_SERVER_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "FUNDLEDGER_SERVER_SHUTDOWN_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.DSN, "FUNDLEDGER_POSTGRES_DSN")
	setInt(&cfg.Postgres.PoolMaxConns, "FUNDLEDGER_POSTGRES_POOL_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FUNDLEDGER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Redis.URL, "FUNDLEDGER_REDIS_URL")
	setStr(&cfg.Redis.Addr, "FUNDLEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FUNDLEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FUNDLEDGER_REDIS_DB")
	setDuration(&cfg.Redis.CacheTTL, "FUNDLEDGER_REDIS_CACHE_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "FUNDLEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FUNDLEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "FUNDLEDGER_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "FUNDLEDGER_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "FUNDLEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FUNDLEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "FUNDLEDGER_S3_FORCE_PATH_STYLE")

	// ── Ledger ──
	setDecimal(&cfg.Ledger.MinFundDeposit, "FUNDLEDGER_LEDGER_MIN_FUND_DEPOSIT")
	setDecimal(&cfg.Ledger.MinEventDeposit, "FUNDLEDGER_LEDGER_MIN_EVENT_DEPOSIT")
	setBool(&cfg.Ledger.AllowEarlyResolve, "FUNDLEDGER_LEDGER_ALLOW_EARLY_RESOLVE")
	setBool(&cfg.Ledger.CloseBetsAtResolveDate, "FUNDLEDGER_LEDGER_CLOSE_BETS_AT_RESOLVE_DATE")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "FUNDLEDGER_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present, non-empty and parses.

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

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}
