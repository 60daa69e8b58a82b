// Package sqlitestore implements the cacheport.Cache port over a SQLite
// file, for single-node durable deployments. Grounded on the teacher's
// internal/infrastructure/sqlite_adapter.go (connection setup, WAL mode,
// foreign_keys pragma) and internal/infrastructure/migrations/manager.go
// (goose.SetDialect/goose.Up usage).
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config mirrors the teacher's infrastructure.Config subset relevant to
// SQLite: file path and pool sizing.
type Config struct {
	Path            string        `mapstructure:"path" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Path:         "tagcache.db",
		MaxOpenConns: 1, // modernc.org/sqlite serializes writers; one conn avoids SQLITE_BUSY storms
		MaxIdleConns: 1,
	}
}

// Store is a cacheport.Cache backed by a SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (creating if needed) the SQLite file at cfg.Path, applies
// embedded migrations, and returns a ready Store.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlitestore: create db directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		logger.Warn("sqlitestore: failed to enable WAL mode", "error", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlitestore: connected", "path", cfg.Path)
	return &Store{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("sqlitestore: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return nil
}

// Get implements cacheport.Cache.
func (s *Store) Get(ctx context.Context, key string, version int) ([]byte, bool, error) {
	var value []byte
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE cache_key = ? AND version = ?`,
		key, version,
	).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlitestore: get: %w", err)
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		_ = s.Delete(ctx, key, version)
		return nil, false, nil
	}
	return value, true, nil
}

// Set implements cacheport.Cache.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration, version int) error {
	var expiresAt interface{}
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_key, version, value, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key, version) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			created_at = CURRENT_TIMESTAMP
	`, key, version, value, expiresAt)
	if err != nil {
		return fmt.Errorf("sqlitestore: set: %w", err)
	}
	return nil
}

// Delete implements cacheport.Cache.
func (s *Store) Delete(ctx context.Context, key string, version int) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ? AND version = ?`, key, version); err != nil {
		return fmt.Errorf("sqlitestore: delete: %w", err)
	}
	return nil
}

// GetMany implements cacheport.Cache.
func (s *Store) GetMany(ctx context.Context, keys []string, version int) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	placeholders := make([]interface{}, 0, len(keys)+1)
	placeholders = append(placeholders, version)
	query := `SELECT cache_key, value, expires_at FROM cache_entries WHERE version = ? AND cache_key IN (`
	for i, k := range keys {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders = append(placeholders, k)
	}
	query += ")"

	rows, err := s.db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get many: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var expired []string
	for rows.Next() {
		var key string
		var value []byte
		var expiresAt sql.NullTime
		if err := rows.Scan(&key, &value, &expiresAt); err != nil {
			return nil, fmt.Errorf("sqlitestore: get many scan: %w", err)
		}
		if expiresAt.Valid && now.After(expiresAt.Time) {
			expired = append(expired, key)
			continue
		}
		out[key] = value
	}
	for _, key := range expired {
		_ = s.Delete(ctx, key, version)
	}
	return out, nil
}

// SetMany implements cacheport.Cache via a single transaction.
func (s *Store) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration, version int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: set many begin: %w", err)
	}
	defer tx.Rollback()

	var expiresAt interface{}
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cache_entries (cache_key, version, value, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key, version) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			created_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("sqlitestore: set many prepare: %w", err)
	}
	defer stmt.Close()

	for k, v := range items {
		if _, err := stmt.ExecContext(ctx, k, version, v, expiresAt); err != nil {
			return fmt.Errorf("sqlitestore: set many exec: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteMany implements cacheport.Cache.
func (s *Store) DeleteMany(ctx context.Context, keys []string, version int) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: delete many begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ? AND version = ?`)
	if err != nil {
		return fmt.Errorf("sqlitestore: delete many prepare: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k, version); err != nil {
			return fmt.Errorf("sqlitestore: delete many exec: %w", err)
		}
	}
	return tx.Commit()
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
	var ttl time.Duration
	var expiresAt sql.NullTime
	_ = s.db.QueryRowContext(ctx, `SELECT expires_at FROM cache_entries WHERE cache_key = ? AND version = ?`, key, version).Scan(&expiresAt)
	if expiresAt.Valid {
		ttl = time.Until(expiresAt.Time)
	}
	if err := s.Set(ctx, key, value, ttl, newVersion); err != nil {
		return version, err
	}
	_ = s.Delete(ctx, key, version)
	return newVersion, nil
}

// HealthCheck pings the underlying database handle.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements cacheport.Cache.
func (s *Store) Close() error {
	return s.db.Close()
}
