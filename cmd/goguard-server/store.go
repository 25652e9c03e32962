package main

import (
	"context"
	"fmt"
	"log/slog"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal/appconfig"
	"github.com/MrEthical07/goGuard/userstore"
	"github.com/MrEthical07/goGuard/userstore/redisstore"
	"github.com/MrEthical07/goGuard/userstore/sqlstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// backend is the opened user store plus the Redis client behind it, if any.
type backend struct {
	store goGuard.UserStore
	redis redis.UniversalClient
	close func()
}

// openStore builds the configured backend. close releases it.
func openStore(ctx context.Context, s appconfig.StoreSection, logger *slog.Logger) (*backend, error) {
	var (
		store   userstore.Store
		client  redis.UniversalClient
		cleanup = func() {}
	)

	switch s.Backend {
	case appconfig.BackendMemory:
		store = userstore.NewMemory()

	case appconfig.BackendMiniredis:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		store, client = redisstore.New(c, s.RedisPrefix), c
		cleanup = func() {
			_ = c.Close()
			mr.Close()
		}
		logger.Info("using miniredis", "addr", mr.Addr())

	case appconfig.BackendRedis:
		c := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("%w: %v", redisstore.ErrUnavailable, err)
		}
		store, client = redisstore.New(c, s.RedisPrefix), c
		cleanup = func() { _ = c.Close() }

	case appconfig.BackendPostgres, appconfig.BackendSQLite:
		dialect := sqlstore.Postgres
		if s.Backend == appconfig.BackendSQLite {
			dialect = sqlstore.SQLite
		}
		db, err := sqlstore.Open(ctx, dialect, s.DSN)
		if err != nil {
			return nil, err
		}
		store = db
		cleanup = func() {
			if err := db.Close(); err != nil {
				logger.Warn("close user store", "error", err)
			}
		}

	default:
		return nil, fmt.Errorf("unknown store backend %q", s.Backend)
	}

	if s.UsernameCacheTTL > 0 {
		store = userstore.NewCached(store, s.UsernameCacheTTL)
	}
	return &backend{store: store, redis: client, close: cleanup}, nil
}
