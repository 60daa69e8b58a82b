// Package locks implements the four isolation-level lock strategies that
// decide when a dependency's Acquire/Release actually touch the cache, and
// when a delayed release fires. Grounded on cache_dependencies.locks.
package locks

import (
	"context"
	"log/slog"
	"time"

	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/cacheport"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/deps"
)

// Level names the four isolation levels, mirroring the strings the
// original's DependencyLock.make factory dispatches on.
type Level string

const (
	ReadUncommitted Level = "READ UNCOMMITTED"
	ReadCommitted   Level = "READ COMMITTED"
	RepeatableRead  Level = "REPEATABLE READ"
	Serializable    Level = "SERIALIZABLE"
)

// Lock is the strategy interface every isolation level implements, mirrors
// cache_dependencies.interfaces.IDependencyLock.
type Lock interface {
	Evaluate(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, txn deps.Transaction, version int) error
	Acquire(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, txn deps.Transaction, version int) error
	Release(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, txn deps.Transaction, version int) error
}

// Make builds the Lock strategy for the given isolation level. Mirrors
// DependencyLock.make's dispatch, raising an error instead of the
// original's ValueError on an unrecognized level.
func Make(level Level, delay time.Duration, logger *slog.Logger) (Lock, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch level {
	case ReadUncommitted:
		return &readUncommitted{delay: delay, logger: logger}, nil
	case ReadCommitted:
		return &readCommitted{readUncommitted{delay: delay, logger: logger}}, nil
	case RepeatableRead:
		return &repeatableRead{delay: delay, logger: logger}, nil
	case Serializable:
		return &serializable{repeatableRead{delay: delay, logger: logger}}, nil
	default:
		return nil, &UnknownLevelError{Level: level}
	}
}

// UnknownLevelError is returned by Make for an unrecognized isolation
// level name.
type UnknownLevelError struct{ Level Level }

func (e *UnknownLevelError) Error() string {
	return "locks: unknown isolation level " + string(e.Level)
}

// readUncommitted never blocks writers on a lock (Acquire is a no-op) and
// releases lazily: if delay > 0, the actual invalidation is scheduled
// delay after Release is called rather than performed immediately, giving
// replicas time to catch up before the tag is forced to re-mint. With
// delay <= 0, Release does nothing. Mirrors ReadUncommittedDependencyLock.
type readUncommitted struct {
	delay  time.Duration
	logger *slog.Logger
}

func (l *readUncommitted) Evaluate(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, txn deps.Transaction, version int) error {
	return dependency.Evaluate(ctx, cache, txn, version)
}

func (l *readUncommitted) Acquire(context.Context, cacheport.Cache, deps.Dependency, deps.Transaction, int) error {
	return nil
}

func (l *readUncommitted) Release(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, txn deps.Transaction, version int) error {
	if l.delay <= 0 {
		return nil
	}
	time.AfterFunc(l.delay, func() {
		bg := context.Background()
		if err := l.invalidate(bg, cache, dependency, version); err != nil {
			l.logger.Error("delayed invalidate failed", "error", err)
		}
	})
	return nil
}

func (l *readUncommitted) invalidate(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, version int) error {
	return dependency.Invalidate(ctx, cache, version)
}

// readCommitted invalidates immediately on Release, in addition to
// scheduling the same delayed invalidate readUncommitted would have — the
// immediate pass lets same-process readers see the change right away,
// while the delayed pass still protects replicas with lag. Mirrors
// ReadCommittedDependencyLock.
type readCommitted struct {
	readUncommitted
}

func (l *readCommitted) Release(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, txn deps.Transaction, version int) error {
	if err := l.invalidate(ctx, cache, dependency, version); err != nil {
		return err
	}
	return l.readUncommitted.Release(ctx, cache, dependency, txn, version)
}

// repeatableRead actually engages the tag lock protocol: Acquire stamps an
// Acquired record (blocking other sessions' Evaluate until Release), and
// Release stamps a Released record carrying the configured replication
// delay. Mirrors RepeatableReadDependencyLock.
type repeatableRead struct {
	delay  time.Duration
	logger *slog.Logger
}

func (l *repeatableRead) Evaluate(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, txn deps.Transaction, version int) error {
	return dependency.Evaluate(ctx, cache, txn, version)
}

func (l *repeatableRead) Acquire(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, txn deps.Transaction, version int) error {
	return dependency.Acquire(ctx, cache, txn, version)
}

func (l *repeatableRead) Release(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, txn deps.Transaction, version int) error {
	return dependency.Release(ctx, cache, txn, l.delay, version)
}

// serializable is operationally identical to repeatableRead — the original
// keeps it as a distinct named strategy so the isolation level a cache user
// configures reads clearly even though the lock behavior happens to
// coincide with REPEATABLE READ. Mirrors SerializableDependencyLock.
type serializable struct {
	repeatableRead
}
