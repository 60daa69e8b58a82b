package backend

import (
	"context"
	"testing"
	"time"

	"github.com/vitaliisemenov/tagcache/internal/config"
)

func TestNewMemoryBackend(t *testing.T) {
	cfg := &config.Config{
		Cache:  config.CacheConfig{Backend: config.BackendMemory},
		Memory: config.MemoryConfig{MaxEntries: 10},
	}
	cache, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	if err := cache.Set(ctx, "k", []byte("v"), time.Hour, 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := cache.Get(ctx, "k", 1)
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("Get: value=%q ok=%v err=%v", v, ok, err)
	}
}

func TestNewUnknownBackendErrors(t *testing.T) {
	cfg := &config.Config{
		Cache: config.CacheConfig{Backend: config.Backend("carrier-pigeon")},
	}
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected New to reject an unrecognized backend")
	}
}

func TestNewRedisBackendFailsFastAgainstUnreachableAddr(t *testing.T) {
	cfg := &config.Config{
		Cache: config.CacheConfig{Backend: config.BackendRedis},
		Redis: config.RedisConfig{Addr: "127.0.0.1:1"},
	}
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected New to fail against a redis addr nothing is listening on")
	}
}

func TestNewSQLiteBackendInMemory(t *testing.T) {
	cfg := &config.Config{
		Cache:  config.CacheConfig{Backend: config.BackendSQLite},
		SQLite: config.SQLiteConfig{Path: ":memory:", MaxOpenConns: 1},
	}
	cache, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cache.Close()
}
