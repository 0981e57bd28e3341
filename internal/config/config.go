// Package config defines the fund ledger's configuration and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/fund-ledger/internal/model"
)

// Config is the root configuration. Fields are populated from a TOML file
// and then optionally overridden by FUNDLEDGER_* environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Ledger   LedgerConfig   `toml:"ledger"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            int      `toml:"port"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	IdleTimeout     duration `toml:"idle_timeout"`
	RequestTimeout  duration `toml:"request_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// PostgresConfig holds the database connection. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds the projection cache connection. URL, when set, takes
// precedence over the discrete fields. Leaving both URL and Addr empty
// disables caching.
type RedisConfig struct {
	URL      string   `toml:"url"`
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	CacheTTL duration `toml:"cache_ttl"`
}

// Enabled reports whether a cache is configured.
func (c RedisConfig) Enabled() bool { return c.URL != "" || c.Addr != "" }

// S3Config holds the snapshot export target.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Enabled reports whether a snapshot bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// LedgerConfig holds the business rules. Deposits are whole currency units.
type LedgerConfig struct {
	MinFundDeposit         decimal.Decimal `toml:"min_fund_deposit"`
	MinEventDeposit        decimal.Decimal `toml:"min_event_deposit"`
	AllowEarlyResolve      bool            `toml:"allow_early_resolve"`
	CloseBetsAtResolveDate bool            `toml:"close_bets_at_resolve_date"`
}

// MinFundDepositMinor returns the minimum fund deposit in minor units.
func (c LedgerConfig) MinFundDepositMinor() decimal.Decimal {
	return toMinor(c.MinFundDeposit)
}

// MinEventDepositMinor returns the minimum event deposit in minor units.
func (c LedgerConfig) MinEventDepositMinor() decimal.Decimal {
	return toMinor(c.MinEventDeposit)
}

func toMinor(units decimal.Decimal) decimal.Decimal {
	return units.Mul(decimal.NewFromInt(model.MinorUnitsPerUnit))
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config that runs the server in memory on port 8080.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     duration{10 * time.Second},
			WriteTimeout:    duration{10 * time.Second},
			IdleTimeout:     duration{60 * time.Second},
			RequestTimeout:  duration{30 * time.Second},
			ShutdownTimeout: duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			PoolMaxConns:  10,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			CacheTTL: duration{30 * time.Second},
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "snapshots/",
		},
		Ledger: LedgerConfig{
			MinFundDeposit:         decimal.NewFromInt(1),
			MinEventDeposit:        decimal.NewFromInt(1),
			AllowEarlyResolve:      false,
			CloseBetsAtResolveDate: true,
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid values and returns a combined error
// describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RequestTimeout.Duration <= 0 {
		errs = append(errs, "server: request_timeout must be positive")
	}

	if c.Postgres.DSN != "" && c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}

	if c.Redis.Enabled() && c.Redis.CacheTTL.Duration <= 0 {
		errs = append(errs, "redis: cache_ttl must be positive when a cache is configured")
	}

	if c.S3.Enabled() && c.S3.Region == "" {
		errs = append(errs, "s3: region is required when bucket is set")
	}

	deposits := []struct {
		name  string
		value decimal.Decimal
	}{
		{"min_fund_deposit", c.Ledger.MinFundDeposit},
		{"min_event_deposit", c.Ledger.MinEventDeposit},
	}
	for _, d := range deposits {
		if d.value.IsNegative() {
			errs = append(errs, fmt.Sprintf("ledger: %s must not be negative", d.name))
		} else if !toMinor(d.value).IsInteger() {
			errs = append(errs, fmt.Sprintf("ledger: %s has more precision than one minor unit", d.name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
