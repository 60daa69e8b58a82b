package deps

import (
	"context"
	"time"

	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/cacheport"
)

// Dummy is the identity element of the dependency algebra: a value with no
// tags, that evaluates and validates trivially and participates in no lock
// protocol. It mirrors cache_dependencies.dependencies.DummyDependency and
// is what RelationManager/TransactionManager hand back for keys that carry
// no explicit dependency.
type Dummy struct{}

// NewDummy returns a Dummy dependency.
func NewDummy() *Dummy { return &Dummy{} }

func (*Dummy) Evaluate(context.Context, cacheport.Cache, Transaction, int) error { return nil }

func (*Dummy) Validate(context.Context, cacheport.Cache, int) error { return nil }

func (*Dummy) Invalidate(context.Context, cacheport.Cache, int) error { return nil }

func (*Dummy) Acquire(context.Context, cacheport.Cache, Transaction, int) error { return nil }

func (*Dummy) Release(context.Context, cacheport.Cache, Transaction, time.Duration, int) error {
	return nil
}

// Extend only merges with another Dummy — anything else falls through to
// CompositeDependency, exactly as the original's extend does.
func (d *Dummy) Extend(other Dependency) (Dependency, bool) {
	if _, ok := other.(*Dummy); ok {
		return d, true
	}
	return nil, false
}

func (*Dummy) Clone() Dependency { return &Dummy{} }

func (*Dummy) String() string { return "Dummy()" }
