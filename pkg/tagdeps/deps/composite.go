package deps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/cacheport"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/deferred"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/tagerrors"
)

// Composite is an AND of other dependencies, mirroring
// cache_dependencies.dependencies.CompositeDependency. It is what a
// relation node or transaction accumulates into once more than one
// dependency has been added for the same key/version.
type Composite struct {
	Delegates []Dependency
}

// NewComposite builds a Composite from the given delegates, flattening any
// nested Composite arguments so chains never nest more than one level deep.
func NewComposite(delegates ...Dependency) *Composite {
	c := &Composite{}
	for _, d := range delegates {
		c.append(d)
	}
	return c
}

func (c *Composite) append(d Dependency) {
	if nested, ok := d.(*Composite); ok {
		c.Delegates = append(c.Delegates, nested.Delegates...)
		return
	}
	c.Delegates = append(c.Delegates, d)
}

// Evaluate runs Evaluate on every delegate, collecting any Locked failures
// into a single CompositeLocked rather than stopping at the first one —
// mirrors CompositeDependency.evaluate.
func (c *Composite) Evaluate(ctx context.Context, cache cacheport.Cache, txn Transaction, version int) error {
	var children []*tagerrors.Locked
	for _, d := range c.Delegates {
		if err := d.Evaluate(ctx, cache, txn, version); err != nil {
			if l, ok := tagerrors.AsLocked(err); ok {
				children = append(children, l)
				continue
			}
			return err
		}
	}
	if len(children) > 0 {
		return &tagerrors.CompositeLocked{Dependency: c, Children: children}
	}
	return nil
}

// deferredValidatable is satisfied by dependency kinds (currently only
// *Tags) that can contribute their Validate GetMany request to a shared
// batch instead of issuing their own round trip. Mirrors the original's
// functools.reduce(operator.iadd, ...) fold over delegate deferreds in
// CompositeDependency.validate.
type deferredValidatable interface {
	validateDeferred(cache cacheport.Cache, version int) (*deferred.Deferred, func() error)
}

// Validate runs Validate on every delegate. Delegates that can express
// their check as a deferred GetMany (currently *Tags) are folded into one
// shared batch and executed with a single round trip; everything else
// still calls its own Validate. Any Invalid failures are collected into a
// single CompositeInvalid. Mirrors CompositeDependency.validate.
func (c *Composite) Validate(ctx context.Context, cache cacheport.Cache, version int) error {
	var children []*tagerrors.Invalid
	var merged *deferred.Deferred
	var checks []func() error

	for _, d := range c.Delegates {
		if dv, ok := d.(deferredValidatable); ok {
			def, check := dv.validateDeferred(cache, version)
			if merged == nil {
				merged = def
			} else {
				merged.Merge(def)
			}
			checks = append(checks, check)
			continue
		}
		if err := d.Validate(ctx, cache, version); err != nil {
			if inv, ok := tagerrors.AsInvalid(err); ok {
				children = append(children, inv)
				continue
			}
			return err
		}
	}

	if merged != nil {
		if _, err := merged.Get(ctx); err != nil {
			return err
		}
		for _, check := range checks {
			if err := check(); err != nil {
				if inv, ok := tagerrors.AsInvalid(err); ok {
					children = append(children, inv)
					continue
				}
				return err
			}
		}
	}

	if len(children) > 0 {
		return &tagerrors.CompositeInvalid{Dependency: c, Children: children}
	}
	return nil
}

// Invalidate fans out to every delegate.
func (c *Composite) Invalidate(ctx context.Context, cache cacheport.Cache, version int) error {
	for _, d := range c.Delegates {
		if err := d.Invalidate(ctx, cache, version); err != nil {
			return err
		}
	}
	return nil
}

// Acquire fans out to every delegate.
func (c *Composite) Acquire(ctx context.Context, cache cacheport.Cache, txn Transaction, version int) error {
	for _, d := range c.Delegates {
		if err := d.Acquire(ctx, cache, txn, version); err != nil {
			return err
		}
	}
	return nil
}

// Release fans out to every delegate.
func (c *Composite) Release(ctx context.Context, cache cacheport.Cache, txn Transaction, delay time.Duration, version int) error {
	for _, d := range c.Delegates {
		if err := d.Release(ctx, cache, txn, delay, version); err != nil {
			return err
		}
	}
	return nil
}

// Extend tries other against each delegate in turn (the chain-of-
// responsibility the original describes), merging it into the first
// delegate that accepts it; if none do, other is appended as a new
// delegate (or its own delegates are flattened in, if it's itself a
// Composite). Composite.Extend never reports failure — it can always
// absorb anything — mirroring the original's behavior of always returning
// a (possibly extended) CompositeDependency.
func (c *Composite) Extend(other Dependency) (Dependency, bool) {
	if nested, ok := other.(*Composite); ok {
		for _, d := range nested.Delegates {
			c.Extend(d)
		}
		return c, true
	}
	for i, d := range c.Delegates {
		if merged, ok := d.Extend(other); ok {
			c.Delegates[i] = merged
			return c, true
		}
	}
	c.append(other.Clone())
	return c, true
}

// Clone deep-copies the delegate list.
func (c *Composite) Clone() Dependency {
	cp := &Composite{Delegates: make([]Dependency, len(c.Delegates))}
	for i, d := range c.Delegates {
		cp.Delegates[i] = d.Clone()
	}
	return cp
}

func (c *Composite) String() string {
	parts := make([]string, len(c.Delegates))
	for i, d := range c.Delegates {
		parts[i] = d.String()
	}
	return fmt.Sprintf("Composite(%s)", strings.Join(parts, ", "))
}
