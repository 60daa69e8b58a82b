// Package pgstore implements the cacheport.Cache port over PostgreSQL,
// for multi-node deployments needing a shared durable backend. Grounded
// on the teacher's internal/database/postgres/pool.go (pgxpool setup,
// config validation, health checking) and
// internal/infrastructure/repository/postgres_history.go (query style).
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config mirrors the teacher's database.PostgresConfig subset relevant
// to the cache backend.
type Config struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	Database string `mapstructure:"database" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:              "localhost",
		Port:              5432,
		Database:          "tagcache",
		User:              "tagcache",
		SSLMode:           "disable",
		MaxConns:          10,
		MinConns:          1,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
	}
}

// DSN renders a libpq connection string from the config.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode,
	)
}

// Store is a cacheport.Cache backed by a PostgreSQL pgxpool.Pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to Postgres per cfg, applies embedded migrations, and
// returns a ready Store.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgstore: create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}

	if err := migrate(cfg.DSN()); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("pgstore: connected", "host", cfg.Host, "database", cfg.Database)
	return &Store{pool: pool, logger: logger}, nil
}

// migrate applies embedded goose migrations using the database/sql
// stdlib adapter, since goose drives migrations over *sql.DB rather
// than a pgx pool.
func migrate(dsn string) error {
	db, err := sql.Open("pgx", stdlib.RegisterConnConfig(mustParseConnConfig(dsn)))
	if err != nil {
		return fmt.Errorf("pgstore: open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("pgstore: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

func mustParseConnConfig(dsn string) *pgx.ConnConfig {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		panic(fmt.Sprintf("pgstore: invalid dsn: %v", err))
	}
	return cfg
}

// Get implements cacheport.Cache.
func (s *Store) Get(ctx context.Context, key string, version int) ([]byte, bool, error) {
	var value []byte
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE cache_key = $1 AND version = $2`,
		key, version,
	).Scan(&value, &expiresAt)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: get: %w", err)
	}
	if expiresAt != nil && time.Now().After(*expiresAt) {
		_ = s.Delete(ctx, key, version)
		return nil, false, nil
	}
	return value, true, nil
}

// Set implements cacheport.Cache.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration, version int) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cache_entries (cache_key, version, value, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cache_key, version) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			created_at = now()
	`, key, version, value, expiresAt)
	if err != nil {
		return fmt.Errorf("pgstore: set: %w", err)
	}
	return nil
}

// Delete implements cacheport.Cache.
func (s *Store) Delete(ctx context.Context, key string, version int) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE cache_key = $1 AND version = $2`, key, version); err != nil {
		return fmt.Errorf("pgstore: delete: %w", err)
	}
	return nil
}

// GetMany implements cacheport.Cache.
func (s *Store) GetMany(ctx context.Context, keys []string, version int) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT cache_key, value, expires_at FROM cache_entries WHERE version = $1 AND cache_key = ANY($2)`,
		version, keys,
	)
	if err != nil {
		return nil, fmt.Errorf("pgstore: get many: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var expired []string
	for rows.Next() {
		var key string
		var value []byte
		var expiresAt *time.Time
		if err := rows.Scan(&key, &value, &expiresAt); err != nil {
			return nil, fmt.Errorf("pgstore: get many scan: %w", err)
		}
		if expiresAt != nil && now.After(*expiresAt) {
			expired = append(expired, key)
			continue
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: get many rows: %w", err)
	}
	for _, key := range expired {
		_ = s.Delete(ctx, key, version)
	}
	return out, nil
}

// SetMany implements cacheport.Cache via a single batched transaction.
func (s *Store) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration, version int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore: set many begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	batch := &pgx.Batch{}
	for k, v := range items {
		batch.Queue(`
			INSERT INTO cache_entries (cache_key, version, value, expires_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (cache_key, version) DO UPDATE SET
				value = excluded.value,
				expires_at = excluded.expires_at,
				created_at = now()
		`, k, version, v, expiresAt)
	}
	br := tx.SendBatch(ctx, batch)
	for range items {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("pgstore: set many exec: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("pgstore: set many close batch: %w", err)
	}
	return tx.Commit(ctx)
}

// DeleteMany implements cacheport.Cache.
func (s *Store) DeleteMany(ctx context.Context, keys []string, version int) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM cache_entries WHERE version = $1 AND cache_key = ANY($2)`,
		version, keys,
	); err != nil {
		return fmt.Errorf("pgstore: delete many: %w", err)
	}
	return nil
}

// BumpVersion implements cacheport.VersionBumper.
func (s *Store) BumpVersion(ctx context.Context, key string, version, delta int) (int, error) {
	newVersion := version + delta
	value, ok, err := s.Get(ctx, key, version)
	if err != nil {
		return version, err
	}
	if !ok {
		return newVersion, nil
	}
	var expiresAt *time.Time
	_ = s.pool.QueryRow(ctx, `SELECT expires_at FROM cache_entries WHERE cache_key = $1 AND version = $2`, key, version).Scan(&expiresAt)
	var ttl time.Duration
	if expiresAt != nil {
		ttl = time.Until(*expiresAt)
	}
	if err := s.Set(ctx, key, value, ttl, newVersion); err != nil {
		return version, err
	}
	_ = s.Delete(ctx, key, version)
	return newVersion, nil
}

// HealthCheck pings the connection pool.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pgstore: health check: %w", err)
	}
	return nil
}

// Close implements cacheport.Cache.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
