// Package tagcache provides the public cache wrapper: get/set/get-many
// driven by the dependency algebra, the relation manager, and whatever
// transaction is currently open. Grounded on cache_tagging.cache.CacheWrapper.
package tagcache

import (
	"context"
	"log/slog"
	"time"

	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/affinity"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/cacheport"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/deps"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/relations"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/tagerrors"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/tagmetrics"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/txn"
)

// Loader computes a value to populate a cache miss, returning the value and
// the dependency it should be written back with. Used by GetOrSet, ported
// from cache_tagging.cache.CacheWrapper.get_or_set_callback.
type Loader func(ctx context.Context) (value []byte, dependency deps.Dependency, err error)

// Wrapper is the cache port plus the dependency bookkeeping layered over
// it. Mirrors cache_tagging.cache.CacheWrapper.
type Wrapper struct {
	cache   cacheport.Cache
	owner   affinity.Token
	rel     *relations.Manager
	txns    *txn.Manager
	logger  *slog.Logger
	metrics *tagmetrics.Metrics
	backend string
	prefix  string
	keyFunc cacheport.KeyFunc
}

// Option configures a Wrapper at construction.
type Option func(*Wrapper)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option { return func(w *Wrapper) { w.logger = l } }

// WithMetrics attaches a tagmetrics.Metrics set; nil (the default) disables
// metrics recording.
func WithMetrics(m *tagmetrics.Metrics) Option { return func(w *Wrapper) { w.metrics = m } }

// WithBackendName labels metrics/log lines with a backend identifier
// ("redis", "sqlite", "postgres", "memory").
func WithBackendName(name string) Option { return func(w *Wrapper) { w.backend = name } }

// WithPrefix sets the key-namespacing prefix used by the default key func.
func WithPrefix(prefix string) Option { return func(w *Wrapper) { w.prefix = prefix } }

// WithKeyFunc overrides cacheport.DefaultKeyFunc.
func WithKeyFunc(f cacheport.KeyFunc) Option { return func(w *Wrapper) { w.keyFunc = f } }

// New builds a Wrapper bound to owner (the goroutine-affinity token shared
// with its relation and transaction managers). The caller builds rel and
// txns and passes them in; the isolation strategy is the lock txns was
// built with. Several wrappers may share one txn.Manager, so invalidation
// from one key's Set is visible to another key's Get within the same
// transaction.
func New(cache cacheport.Cache, owner affinity.Token, rel *relations.Manager, txns *txn.Manager, opts ...Option) *Wrapper {
	w := &Wrapper{
		cache:   cache,
		owner:   owner,
		rel:     rel,
		txns:    txns,
		logger:  slog.Default(),
		backend: "unknown",
		keyFunc: cacheport.DefaultKeyFunc,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Wrapper) physicalKey(key string, version int) string {
	return w.keyFunc(w.prefix, version, key)
}

// begin marks key as the fragment currently under construction, mirroring
// CacheWrapper.begin.
func (w *Wrapper) begin(key string) (*relations.Node, error) {
	return w.rel.SetCurrent(w.owner, key)
}

// abort discards key's in-progress fragment without recording any
// dependency, mirroring CacheWrapper.abort.
func (w *Wrapper) abort(key string) {
	_, _ = w.rel.Pop(w.owner, key)
}

// finish pops key's fragment and folds dependency into its parent (if any),
// mirroring CacheWrapper.finish.
func (w *Wrapper) finish(key string, dependency deps.Dependency, version int) error {
	node, err := w.rel.Pop(w.owner, key)
	if err != nil {
		return err
	}
	node.AddDependency(dependency, version)
	return nil
}

// Get reads key, validating its captured dependency against the live cache
// state. A miss or a stale (invalid) value both report ok=false; the
// in-progress fragment started for key is left open in either case, so a
// caller that goes on to recompute and Set is building the same fragment
// Get started. Mirrors CacheWrapper.get.
func (w *Wrapper) Get(ctx context.Context, key string, version int) (value []byte, ok bool, err error) {
	if _, err := w.begin(key); err != nil {
		return nil, false, err
	}

	raw, found, err := w.cache.Get(ctx, w.physicalKey(key, version), version)
	if err != nil {
		w.recordMiss("error")
		return nil, false, err
	}
	if !found {
		w.recordMiss("absent")
		return nil, false, nil
	}

	value, dependency, unpackedOK := Unpack(raw)
	if !unpackedOK {
		value, dependency = raw, deps.NewDummy()
	}

	if err := dependency.Validate(ctx, w.cache, version); err != nil {
		if _, invalid := tagerrors.AsInvalid(err); invalid {
			w.recordMiss("invalid")
			return nil, false, nil
		}
		return nil, false, err
	}

	if err := w.finish(key, dependency, version); err != nil {
		return nil, false, err
	}
	w.recordHit()
	return value, true, nil
}

// GetMany is the batched counterpart of Get. Unlike the single-key Get,
// its relation-node bookkeeping is intentionally simplified relative to
// the original: each key's fragment is fetched (not made "current") for
// the duration of the call, since GetMany callers don't nest further cache
// construction inside the batch the way a single Get's caller might.
// Mirrors CacheWrapper.get_many.
func (w *Wrapper) GetMany(ctx context.Context, keys []string, version int) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}

	physical := make([]string, len(keys))
	byPhysical := make(map[string]string, len(keys))
	for i, k := range keys {
		pk := w.physicalKey(k, version)
		physical[i] = pk
		byPhysical[pk] = k
	}

	rawMany, err := w.cache.GetMany(ctx, physical, version)
	if err != nil {
		return nil, err
	}

	type entry struct {
		key        string
		node       *relations.Node
		dependency deps.Dependency
		value      []byte
	}
	var entries []entry
	for pk, raw := range rawMany {
		key := byPhysical[pk]
		node, err := w.rel.Get(w.owner, key)
		if err != nil {
			return nil, err
		}
		value, dependency, ok := Unpack(raw)
		if !ok {
			value, dependency = raw, deps.NewDummy()
		}
		entries = append(entries, entry{key: key, node: node, dependency: dependency, value: value})
	}

	delegates := make([]deps.Dependency, len(entries))
	byDependency := make(map[deps.Dependency]*entry, len(entries))
	for i := range entries {
		delegates[i] = entries[i].dependency
		byDependency[entries[i].dependency] = &entries[i]
	}
	// Built directly (not via NewComposite/Extend) so each key's dependency
	// keeps its own pointer identity as a Composite delegate — the
	// CompositeInvalid error below needs to point back at exactly the
	// object held in byDependency, not a flattened or cloned copy.
	composite := &deps.Composite{Delegates: delegates}

	excluded := make(map[string]struct{})
	if err := composite.Validate(ctx, w.cache, version); err != nil {
		ci, ok := err.(*tagerrors.CompositeInvalid)
		if !ok {
			return nil, err
		}
		for _, child := range ci.Children {
			childDep, ok := child.Dependency.(deps.Dependency)
			if !ok {
				continue
			}
			if e, ok := byDependency[childDep]; ok {
				excluded[e.key] = struct{}{}
			}
		}
	}

	result := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if _, skip := excluded[e.key]; skip {
			w.recordMiss("invalid")
			continue
		}
		if err := w.finish(e.key, e.dependency, version); err != nil {
			return nil, err
		}
		result[e.key] = e.value
		w.recordHit()
	}
	return result, nil
}

// Set writes value under key, combined with whatever dependency the
// in-progress fragment for key had already accumulated from nested
// fragments (read before the fragment is popped, so the combined
// dependency captures descendants too). If the combined dependency is
// currently locked by another transaction the write is silently dropped —
// the fragment still finishes normally with the caller's explicit
// dependency (not the combined one), so descendant tags aren't recorded
// twice. Mirrors CacheWrapper.set.
func (w *Wrapper) Set(ctx context.Context, key string, value []byte, dependency deps.Dependency, ttl time.Duration, version int) error {
	if dependency == nil {
		dependency = deps.NewDummy()
	}

	node, err := w.rel.Get(w.owner, key)
	if err != nil {
		return err
	}
	combined := deps.Combine(dependency, node.GetDependency(version))

	current, err := w.txns.Current(w.owner)
	if err != nil {
		return err
	}

	evalErr := current.Evaluate(ctx, w.cache, combined, version)
	switch {
	case evalErr == nil:
		packed, err := Pack(value, combined)
		if err != nil {
			return w.finishAfter(key, dependency, version, err)
		}
		if err := w.cache.Set(ctx, w.physicalKey(key, version), packed, ttl, version); err != nil {
			return w.finishAfter(key, dependency, version, err)
		}
		w.recordSet()
	default:
		if _, locked := tagerrors.AsLocked(evalErr); !locked {
			return w.finishAfter(key, dependency, version, evalErr)
		}
		w.recordLocked()
	}

	return w.finish(key, dependency, version)
}

// finishAfter runs finish for its side effect (popping the fragment) even
// though the caller is about to return an error, then returns the
// original error.
func (w *Wrapper) finishAfter(key string, dependency deps.Dependency, version int, original error) error {
	_ = w.finish(key, dependency, version)
	return original
}

// GetOrSet is a convenience wrapper: Get, and on a miss, call loader, Set
// the result, and return it. Ported from
// cache_tagging.cache.CacheWrapper.get_or_set_callback (a feature present
// in the original but compressed out of the distilled core).
func (w *Wrapper) GetOrSet(ctx context.Context, key string, loader Loader, ttl time.Duration, version int) ([]byte, error) {
	if value, ok, err := w.Get(ctx, key, version); err != nil {
		return nil, err
	} else if ok {
		return value, nil
	}
	value, dependency, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if err := w.Set(ctx, key, value, dependency, ttl, version); err != nil {
		return nil, err
	}
	return value, nil
}

// InvalidateDependency acquires dependency against the current transaction
// (so its eventual release, per the active isolation level, reflects this
// invalidation) and then forces it to miss immediately. Mirrors
// CacheWrapper.invalidate_dependency.
func (w *Wrapper) InvalidateDependency(ctx context.Context, dependency deps.Dependency, version int) error {
	current, err := w.txns.Current(w.owner)
	if err != nil {
		return err
	}
	if err := current.AddDependency(ctx, w.cache, dependency, version); err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.Invalidations.WithLabelValues(w.backend).Inc()
	}
	return dependency.Invalidate(ctx, w.cache, version)
}

// Close flushes every open transaction and discards every tracked
// relation node. Mirrors CacheWrapper.close.
func (w *Wrapper) Close(ctx context.Context) error {
	if err := w.txns.Flush(ctx, w.cache, w.owner); err != nil {
		return err
	}
	return w.rel.Clear(w.owner)
}

func (w *Wrapper) recordHit() {
	if w.metrics != nil {
		w.metrics.Hits.WithLabelValues(w.backend).Inc()
	}
}

func (w *Wrapper) recordMiss(reason string) {
	if w.metrics != nil {
		w.metrics.Misses.WithLabelValues(w.backend, reason).Inc()
	}
}

func (w *Wrapper) recordSet() {
	if w.metrics != nil {
		w.metrics.Sets.WithLabelValues(w.backend).Inc()
	}
}

func (w *Wrapper) recordLocked() {
	if w.metrics != nil {
		w.metrics.Locked.WithLabelValues(w.backend).Inc()
	}
	w.logger.Warn("cache write dropped: dependency locked by another transaction", "backend", w.backend)
}
