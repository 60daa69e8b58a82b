// Package backend wires internal/config's backend selection to a
// concrete cacheport.Cache implementation. Grounded on the teacher's
// internal/storage/factory.go (backend-enum-to-constructor dispatch).
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vitaliisemenov/tagcache/internal/backend/memstore"
	"github.com/vitaliisemenov/tagcache/internal/backend/pgstore"
	"github.com/vitaliisemenov/tagcache/internal/backend/redisstore"
	"github.com/vitaliisemenov/tagcache/internal/backend/sqlitestore"
	"github.com/vitaliisemenov/tagcache/internal/config"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/cacheport"
)

// New constructs the cacheport.Cache selected by cfg.Cache.Backend.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cacheport.Cache, error) {
	switch cfg.Cache.Backend {
	case config.BackendMemory:
		return memstore.New(cfg.Memory.MaxEntries)
	case config.BackendRedis:
		rc := &redisstore.Config{
			Addr:            cfg.Redis.Addr,
			Password:        cfg.Redis.Password,
			DB:              cfg.Redis.DB,
			PoolSize:        cfg.Redis.PoolSize,
			MinIdleConns:    cfg.Redis.MinIdleConns,
			DialTimeout:     cfg.Redis.DialTimeout,
			ReadTimeout:     cfg.Redis.ReadTimeout,
			WriteTimeout:    cfg.Redis.WriteTimeout,
			MaxRetries:      cfg.Redis.MaxRetries,
			MinRetryBackoff: cfg.Redis.MinRetryBackoff,
			MaxRetryBackoff: cfg.Redis.MaxRetryBackoff,
		}
		return redisstore.New(ctx, rc, logger)
	case config.BackendSQLite:
		sc := &sqlitestore.Config{
			Path:            cfg.SQLite.Path,
			MaxOpenConns:    cfg.SQLite.MaxOpenConns,
			MaxIdleConns:    cfg.SQLite.MaxIdleConns,
			ConnMaxLifetime: cfg.SQLite.ConnMaxLifetime,
		}
		return sqlitestore.New(ctx, sc, logger)
	case config.BackendPostgres:
		pc := &pgstore.Config{
			Host:              cfg.Postgres.Host,
			Port:              cfg.Postgres.Port,
			Database:          cfg.Postgres.Database,
			User:              cfg.Postgres.User,
			Password:          cfg.Postgres.Password,
			SSLMode:           cfg.Postgres.SSLMode,
			MaxConns:          cfg.Postgres.MaxConns,
			MinConns:          cfg.Postgres.MinConns,
			MaxConnLifetime:   cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime:   cfg.Postgres.MaxConnIdleTime,
			HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
		}
		return pgstore.New(ctx, pc, logger)
	default:
		return nil, fmt.Errorf("backend: unknown cache backend %q", cfg.Cache.Backend)
	}
}
