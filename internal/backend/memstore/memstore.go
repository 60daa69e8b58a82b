// Package memstore implements the cacheport.Cache port over an in-process
// LRU, for single-process use and tests. Grounded on the teacher's
// internal/infrastructure/publishing/lru_cache.go (hashicorp/golang-lru
// usage) and pkg/history/cache/l1_cache.go (TTL-wrapped entries over a
// map-like store).
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiration
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store is an in-process, size-bounded cache backend.
type Store struct {
	mu    sync.Mutex
	cache *lru.Cache[string, entry]
}

// New builds a Store holding at most size entries, evicting least-recently
// used entries once full.
func New(size int) (*Store, error) {
	if size <= 0 {
		size = 10_000
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("memstore: %w", err)
	}
	return &Store{cache: c}, nil
}

func namespacedKey(key string, version int) string {
	return fmt.Sprintf("%d:%s", version, key)
}

// Get implements cacheport.Cache.
func (s *Store) Get(ctx context.Context, key string, version int) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache.Get(namespacedKey(key, version))
	if !ok {
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		s.cache.Remove(namespacedKey(key, version))
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements cacheport.Cache.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.cache.Add(namespacedKey(key, version), e)
	return nil
}

// Delete implements cacheport.Cache.
func (s *Store) Delete(ctx context.Context, key string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(namespacedKey(key, version))
	return nil
}

// GetMany implements cacheport.Cache.
func (s *Store) GetMany(ctx context.Context, keys []string, version int) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok, err := s.Get(ctx, k, version); err == nil && ok {
			out[k] = v
		}
	}
	return out, nil
}

// SetMany implements cacheport.Cache.
func (s *Store) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration, version int) error {
	for k, v := range items {
		if err := s.Set(ctx, k, v, ttl, version); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMany implements cacheport.Cache.
func (s *Store) DeleteMany(ctx context.Context, keys []string, version int) error {
	for _, k := range keys {
		if err := s.Delete(ctx, k, version); err != nil {
			return err
		}
	}
	return nil
}

// BumpVersion implements cacheport.VersionBumper.
func (s *Store) BumpVersion(ctx context.Context, key string, version, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := namespacedKey(key, version)
	e, ok := s.cache.Get(old)
	if !ok {
		return version + delta, nil
	}
	s.cache.Remove(old)
	newVersion := version + delta
	s.cache.Add(namespacedKey(key, newVersion), e)
	return newVersion, nil
}

// Len reports the number of entries currently held, including any not yet
// evicted for expiry.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Close implements cacheport.Cache.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
	return nil
}
