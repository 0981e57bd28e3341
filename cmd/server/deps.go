package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/fund-ledger/internal/cache"
	"github.com/atmx/fund-ledger/internal/config"
	"github.com/atmx/fund-ledger/internal/snapshot"
	"github.com/atmx/fund-ledger/internal/store"
)

// openStore returns the configured store and a cleanup func. Without a DSN
// it falls back to an in-memory store.
func openStore(ctx context.Context, cfg config.PostgresConfig) (store.Store, func(), error) {
	if cfg.DSN == "" {
		slog.Warn("postgres dsn not set, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), func() {}, nil
	}
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	pg := store.NewPostgresStore(pool)
	if cfg.RunMigrations {
		if err := pg.RunMigrations(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	slog.Info("connected to PostgreSQL")
	return pg, pool.Close, nil
}

func openPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.PoolMaxConns)
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// openCache returns nil when no Redis is configured.
func openCache(cfg config.RedisConfig) (*cache.RedisCache, func(), error) {
	if !cfg.Enabled() {
		return nil, func() {}, nil
	}
	opt := &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	if cfg.URL != "" {
		var err error
		if opt, err = redis.ParseURL(cfg.URL); err != nil {
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}
	}
	rdb := redis.NewClient(opt)
	slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL.Duration)
	return cache.NewRedisCache(rdb, cfg.CacheTTL.Duration), func() { rdb.Close() }, nil
}

func openBlobs(ctx context.Context, cfg config.S3Config) (*snapshot.S3Store, error) {
	return snapshot.NewS3Store(ctx, snapshot.S3Config{
		Endpoint:       cfg.Endpoint,
		Region:         cfg.Region,
		Bucket:         cfg.Bucket,
		AccessKey:      cfg.AccessKey,
		SecretKey:      cfg.SecretKey,
		ForcePathStyle: cfg.ForcePathStyle,
	})
}
