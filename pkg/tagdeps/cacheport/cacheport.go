// Package cacheport defines the abstract key-value cache the tag-dependency
// engine is layered over, and the conventions every concrete backend
// (Redis, SQLite, Postgres, in-process LRU) must honor.
package cacheport

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Cache is the port the dependency engine and cache wrapper depend on. It is
// deliberately narrower than a full Django-style cache API: only the
// operations the engine actually issues are exposed.
type Cache interface {
	// Get returns the raw bytes stored at key in the given version
	// namespace, and ok=false if the key is absent or expired. A miss is
	// never reported as an error.
	Get(ctx context.Context, key string, version int) (value []byte, ok bool, err error)

	// Set stores value at key in the given version namespace with ttl.
	// ttl<=0 means no expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, version int) error

	// Delete removes key from the given version namespace. Deleting an
	// absent key is not an error.
	Delete(ctx context.Context, key string, version int) error

	// GetMany is the batched counterpart of Get; the returned map contains
	// an entry only for keys that were present.
	GetMany(ctx context.Context, keys []string, version int) (map[string][]byte, error)

	// SetMany is the batched counterpart of Set.
	SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration, version int) error

	// DeleteMany is the batched counterpart of Delete.
	DeleteMany(ctx context.Context, keys []string, version int) error

	// Close releases any resources (connections, file handles) held by the
	// backend.
	Close() error
}

// VersionBumper is an optional capability some backends expose, ported from
// cache_tagging.AbstractCache.incr_version/decr_version: atomically shifting
// every key in a version namespace to an adjacent one is not something
// every backend can do cheaply, so it's kept as a separate, optional
// interface rather than a required Cache method.
type VersionBumper interface {
	// BumpVersion moves key from version to version+delta, returning the
	// new version. Backends that can't do this atomically may implement it
	// as a read-then-write; callers relying on it under contention should
	// not assume atomicity beyond what the concrete backend documents.
	BumpVersion(ctx context.Context, key string, version, delta int) (int, error)
}

// HealthChecker is an optional capability a backend exposes when it has a
// cheap liveness probe distinct from an ordinary Get/Set round trip (a
// connection ping, a pool stat). Not every backend needs one: memstore has
// nothing external to probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// KeyFunc composes the physical cache key from a namespace prefix, version,
// and logical key, mirroring cache_tagging.cache.default_key_func.
type KeyFunc func(prefix string, version int, key string) string

// DefaultKeyFunc is "<prefix>:<version>:<key>", the original's
// default_key_func composition; an empty prefix is dropped together with
// its colon, giving "<version>:<key>".
func DefaultKeyFunc(prefix string, version int, key string) string {
	if prefix == "" {
		return fmt.Sprintf("%d:%s", version, key)
	}
	return fmt.Sprintf("%s:%d:%s", prefix, version, key)
}

// ValidateKeyPortability reports a non-nil, advisory error for keys that are
// unsafe on some backends (memcached rejects keys with control characters
// or spaces, or longer than 250 bytes). It mirrors
// cache_tagging.AbstractCache.validate_key, which only warns; callers should
// log this, not treat it as fatal.
func ValidateKeyPortability(key string) error {
	if len(key) > 250 {
		return fmt.Errorf("cacheport: key %q is %d bytes, exceeds the 250-byte portability limit", key, len(key))
	}
	if strings.IndexFunc(key, func(r rune) bool { return r <= ' ' || r == 0x7f }) >= 0 {
		return fmt.Errorf("cacheport: key %q contains whitespace or control characters, unsafe on some backends", key)
	}
	return nil
}

// ErrMiss is a sentinel for distinguishing "not found" from "found nil".
// Nothing in this module returns it, and backends never need to: a miss is
// communicated through Get's ok=false, not through this error.
var ErrMiss = fmt.Errorf("cacheport: key not found")
