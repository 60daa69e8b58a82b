// Package deps implements the dependency algebra: TagsDependency (the real
// thing, backed by versioned tag keys), CompositeDependency (an AND of
// other dependencies), and DummyDependency (the no-op identity element).
// It is grounded on cache_dependencies.dependencies.
package deps

import (
	"context"
	"time"

	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/cacheport"
)

// Transaction is the minimal view the dependency algebra needs of a
// transaction: its session identity and start/end timestamps. The concrete
// implementation lives in package txn; this narrower interface exists so
// deps never imports txn (txn, in turn, holds a CompositeDependency per
// version and so must import deps — the dependency runs the other way in
// the original Python package too).
type Transaction interface {
	SessionID() string
	StartTime() time.Time
	EndTime() time.Time
}

// Dependency is the sum-type contract every dependency kind satisfies:
// evaluate (check for locks before reading the cache), validate (check
// staleness after reading the cache), invalidate (force a miss), and
// acquire/release (the lock protocol around a write). It mirrors
// cache_dependencies.interfaces.IDependency.
type Dependency interface {
	// Evaluate returns a non-nil error of the tagerrors Locked lineage
	// (recognised by tagerrors.AsLocked) if any part of this dependency is
	// currently locked by another transaction.
	Evaluate(ctx context.Context, cache cacheport.Cache, txn Transaction, version int) error

	// Validate returns a non-nil error of the tagerrors Invalid lineage
	// (recognised by tagerrors.AsInvalid) if the dependency's captured state
	// no longer matches the cache (e.g. a tag was bumped since Evaluate).
	Validate(ctx context.Context, cache cacheport.Cache, version int) error

	// Invalidate forces every tag covered by this dependency to miss on
	// its next Evaluate.
	Invalidate(ctx context.Context, cache cacheport.Cache, version int) error

	// Acquire records that txn holds this dependency's tags, blocking
	// concurrent Evaluate calls from other sessions per the active
	// isolation level.
	Acquire(ctx context.Context, cache cacheport.Cache, txn Transaction, version int) error

	// Release records that txn is done with this dependency's tags,
	// honoring delay as the replication-lag grace period other replicas
	// need before they can trust the release.
	Release(ctx context.Context, cache cacheport.Cache, txn Transaction, delay time.Duration, version int) error

	// Extend tries to merge other into this dependency in place, returning
	// the merged Dependency and true on success. False means the caller
	// must fall back to wrapping both in a CompositeDependency — this is
	// the chain-of-responsibility the original's extend() implements.
	Extend(other Dependency) (Dependency, bool)

	// Clone returns an independent deep copy.
	Clone() Dependency

	String() string
}

// Combine merges b into a, preferring an in-place Extend and falling back
// to a CompositeDependency wrapping both. This is the operation relation
// nodes and transactions use whenever a new dependency needs to be folded
// into an existing one.
func Combine(a, b Dependency) Dependency {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if merged, ok := a.Extend(b); ok {
		return merged
	}
	return NewComposite(a, b)
}
