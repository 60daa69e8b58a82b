// Package redisstore implements the cacheport.Cache port over Redis.
// Grounded on the teacher's internal/infrastructure/cache/redis.go: same
// config-struct-with-mapstructure-tags shape, same construct-ping-log-wrap pattern,
// same CacheError lineage.
package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config mirrors the teacher's cache.CacheConfig: connection, pool, and
// timeout settings for the underlying redis.Client.
type Config struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	PoolSize     int           `mapstructure:"pool_size" validate:"min=1"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// DefaultConfig returns sane defaults, mirroring the teacher's
// NewRedisCache's nil-config fallback.
func DefaultConfig() *Config {
	return &Config{
		Addr:            "localhost:6379",
		PoolSize:        10,
		MinIdleConns:    1,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	}
}

// Error wraps a redis failure with an operation-identifying code, mirroring
// the teacher's cache.CacheError.
type Error struct {
	Message string
	Code    string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(message, code string, cause error) *Error {
	return &Error{Message: message, Code: code, Cause: cause}
}

// Store is a cacheport.Cache backed by a redis.Client (or any type, like
// *redis.ClusterClient, satisfying the same subset used here).
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// New connects to Redis per cfg and pings it before returning, mirroring
// NewRedisCache's construct-then-ping pattern.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, newError("failed to connect to redis", "CONNECTION_ERROR", err)
	}

	logger.Info("connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	return &Store{client: client, logger: logger}, nil
}

// NewFromClient wraps an already-constructed client (e.g. miniredis in
// tests, or a shared *redis.Client the application already owns).
func NewFromClient(client redis.UniversalClient, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger}
}

func namespacedKey(key string, version int) string {
	return fmt.Sprintf("v%d:%s", version, key)
}

// Get implements cacheport.Cache.
func (s *Store) Get(ctx context.Context, key string, version int) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, namespacedKey(key, version)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		s.logger.Error("redis get failed", "key", key, "error", err)
		return nil, false, newError("redis get failed", "GET_ERROR", err)
	}
	return val, true, nil
}

// Set implements cacheport.Cache.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration, version int) error {
	if err := s.client.Set(ctx, namespacedKey(key, version), value, ttl).Err(); err != nil {
		s.logger.Error("redis set failed", "key", key, "error", err)
		return newError("redis set failed", "SET_ERROR", err)
	}
	return nil
}

// Delete implements cacheport.Cache.
func (s *Store) Delete(ctx context.Context, key string, version int) error {
	if err := s.client.Del(ctx, namespacedKey(key, version)).Err(); err != nil {
		return newError("redis delete failed", "DELETE_ERROR", err)
	}
	return nil
}

// GetMany implements cacheport.Cache, using MGET for a single round trip.
func (s *Store) GetMany(ctx context.Context, keys []string, version int) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	physical := make([]string, len(keys))
	for i, k := range keys {
		physical[i] = namespacedKey(k, version)
	}
	vals, err := s.client.MGet(ctx, physical...).Result()
	if err != nil {
		return nil, newError("redis mget failed", "GET_ERROR", err)
	}
	out := make(map[string][]byte, len(keys))
	for i, v := range vals {
		if v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = []byte(str)
	}
	return out, nil
}

// SetMany implements cacheport.Cache via a pipeline of SET..EX commands
// (MSET has no per-key TTL, so a pipeline is used instead).
func (s *Store) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration, version int) error {
	pipe := s.client.Pipeline()
	for k, v := range items {
		pipe.Set(ctx, namespacedKey(k, version), v, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return newError("redis pipelined set failed", "SET_ERROR", err)
	}
	return nil
}

// DeleteMany implements cacheport.Cache.
func (s *Store) DeleteMany(ctx context.Context, keys []string, version int) error {
	if len(keys) == 0 {
		return nil
	}
	physical := make([]string, len(keys))
	for i, k := range keys {
		physical[i] = namespacedKey(k, version)
	}
	if err := s.client.Del(ctx, physical...).Err(); err != nil {
		return newError("redis delete many failed", "DELETE_ERROR", err)
	}
	return nil
}

// BumpVersion implements cacheport.VersionBumper by moving the value to
// the new version's key and deleting the old one.
func (s *Store) BumpVersion(ctx context.Context, key string, version, delta int) (int, error) {
	newVersion := version + delta
	val, ok, err := s.Get(ctx, key, version)
	if err != nil {
		return version, err
	}
	if !ok {
		return newVersion, nil
	}
	ttl, err := s.client.TTL(ctx, namespacedKey(key, version)).Result()
	if err != nil {
		ttl = 0
	}
	if err := s.Set(ctx, key, val, ttl, newVersion); err != nil {
		return version, err
	}
	_ = s.Delete(ctx, key, version)
	return newVersion, nil
}

// HealthCheck pings the redis server, mirroring the teacher's
// Cache.HealthCheck.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return newError("redis health check failed", "CONNECTION_ERROR", err)
	}
	return nil
}

// Close implements cacheport.Cache.
func (s *Store) Close() error {
	if closer, ok := s.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
