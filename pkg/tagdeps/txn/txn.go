// Package txn implements nested transactions and the per-version
// dependency they accumulate, grounded on cache_dependencies.transaction.
package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/affinity"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/cacheport"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/deps"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/locks"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/session"
)

// Transaction is the contract both root transactions and savepoints
// satisfy. Mirrors cache_dependencies.interfaces.ITransaction.
type Transaction interface {
	deps.Transaction

	Parent() Transaction
	AddDependency(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, version int) error
	Evaluate(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, version int) error
	Finish(ctx context.Context, cache cacheport.Cache) error
	// Active reports whether this is a real transaction (true) or the
	// dummy sentinel handed back when nothing is open. Mirrors the
	// original's Transaction.__bool__.
	Active() bool
}

// txnBase holds what every real Transaction (root or savepoint) needs:
// session identity, the lock strategy, and the per-version composite
// dependency accumulated via AddDependency.
type txnBase struct {
	lock         locks.Lock
	sessionID    string
	startTime    time.Time
	endTime      time.Time
	endTimeSet   bool
	mu           sync.Mutex
	dependencies map[int]deps.Dependency
}

func newBase(lock locks.Lock, owner affinity.Token) *txnBase {
	return &txnBase{
		lock:         lock,
		sessionID:    string(session.New(owner.String())),
		startTime:    time.Now(),
		dependencies: make(map[int]deps.Dependency),
	}
}

func (t *txnBase) SessionID() string { return t.sessionID }
func (t *txnBase) StartTime() time.Time { return t.startTime }

// EndTime returns the zero time until Finish has run (the original raises
// RuntimeError if accessed before Finish); EndTimeOK reports whether it has
// been set.
func (t *txnBase) EndTime() time.Time { return t.endTime }

func (t *txnBase) EndTimeOK() bool { return t.endTimeSet }

// Root is a top-level transaction with no parent. Mirrors
// cache_dependencies.transaction.Transaction.
type Root struct {
	*txnBase
}

// NewRoot begins a new root transaction under the given lock strategy.
func NewRoot(lock locks.Lock, owner affinity.Token) *Root {
	return &Root{txnBase: newBase(lock, owner)}
}

func (r *Root) Parent() Transaction { return nil }
func (r *Root) Active() bool        { return true }

// AddDependency folds dependency into this transaction's per-version
// composite, then immediately acquires the updated composite's lock.
// Mirrors Transaction.add_dependency.
func (r *Root) AddDependency(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, version int) error {
	r.mu.Lock()
	r.dependencies[version] = deps.Combine(r.dependencies[version], dependency)
	combined := r.dependencies[version]
	r.mu.Unlock()
	return r.lock.Acquire(ctx, cache, combined, r, version)
}

// Evaluate delegates to the active lock strategy's Evaluate, checking
// whether dependency is currently locked. Mirrors AbstractTransaction.evaluate.
func (r *Root) Evaluate(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, version int) error {
	return r.lock.Evaluate(ctx, cache, dependency, r, version)
}

// Finish stamps the end time and releases every version's accumulated
// dependency. Mirrors Transaction.finish.
func (r *Root) Finish(ctx context.Context, cache cacheport.Cache) error {
	r.mu.Lock()
	r.endTime = time.Now()
	r.endTimeSet = true
	pending := make(map[int]deps.Dependency, len(r.dependencies))
	for v, d := range r.dependencies {
		pending[v] = d
	}
	r.mu.Unlock()

	for version, d := range pending {
		if err := r.lock.Release(ctx, cache, d, r, version); err != nil {
			return err
		}
	}
	return nil
}

// SavePoint is a nested transaction: it records its own per-version
// dependency, but delegates start/end time to its parent and forwards
// every AddDependency call upward too, so the ultimate root transaction's
// lock acquisition always sees the union of everything nested below it.
// Finish is a no-op — only the root releases locks. Mirrors
// cache_dependencies.transaction.SavePoint.
type SavePoint struct {
	*txnBase
	parent Transaction
}

// NewSavePoint opens a savepoint nested under parent.
func NewSavePoint(lock locks.Lock, owner affinity.Token, parent Transaction) *SavePoint {
	return &SavePoint{txnBase: newBase(lock, owner), parent: parent}
}

func (s *SavePoint) Parent() Transaction  { return s.parent }
func (s *SavePoint) Active() bool         { return true }
func (s *SavePoint) StartTime() time.Time { return s.parent.StartTime() }
func (s *SavePoint) EndTime() time.Time   { return s.parent.EndTime() }

// AddDependency records locally (in the savepoint's own per-version
// dependency map) and forwards to the parent, which is
// what actually acquires the lock. Mirrors SavePoint.add_dependency.
func (s *SavePoint) AddDependency(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, version int) error {
	s.mu.Lock()
	s.dependencies[version] = deps.Combine(s.dependencies[version], dependency)
	s.mu.Unlock()
	return s.parent.AddDependency(ctx, cache, dependency, version)
}

func (s *SavePoint) Evaluate(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, version int) error {
	return s.lock.Evaluate(ctx, cache, dependency, s, version)
}

// Finish is a no-op: a savepoint never itself releases locks, only the
// transaction it's nested in does, once it finishes. Mirrors SavePoint.finish.
func (s *SavePoint) Finish(context.Context, cacheport.Cache) error { return nil }

// Dummy is the sentinel handed back when no transaction is open, mirrors
// cache_dependencies.transaction.DummyTransaction: AddDependency and Finish
// are no-ops, and both timestamps read as "now".
type Dummy struct {
	lock      locks.Lock
	sessionID string
}

// NewDummy builds the sentinel transaction for a manager with no
// transaction currently open.
func NewDummy(lock locks.Lock, owner affinity.Token) *Dummy {
	return &Dummy{lock: lock, sessionID: string(session.New(owner.String()))}
}

func (d *Dummy) Parent() Transaction     { return nil }
func (d *Dummy) Active() bool            { return false }
func (d *Dummy) SessionID() string       { return d.sessionID }
func (d *Dummy) StartTime() time.Time    { return time.Now() }
func (d *Dummy) EndTime() time.Time      { return time.Now() }

func (d *Dummy) AddDependency(context.Context, cacheport.Cache, deps.Dependency, int) error {
	return nil
}

func (d *Dummy) Evaluate(ctx context.Context, cache cacheport.Cache, dependency deps.Dependency, version int) error {
	return d.lock.Evaluate(ctx, cache, dependency, d, version)
}

func (d *Dummy) Finish(context.Context, cacheport.Cache) error { return nil }

// Manager owns the "current" transaction for one affinity owner and
// implements begin/finish/flush nesting via SavePoint. Mirrors
// cache_dependencies.transaction.TransactionManager; goroutine affinity is
// enforced via an explicit Token rather than the original's implicit
// thread-id check (see package affinity).
type Manager struct {
	guard   affinity.Guard
	lock    locks.Lock
	owner   affinity.Token
	mu      sync.Mutex
	current Transaction
}

// New builds a Manager bound to owner, using lock as the isolation
// strategy for every transaction it opens.
func New(lock locks.Lock, owner affinity.Token) *Manager {
	return &Manager{guard: affinity.NewGuard(owner), lock: lock, owner: owner}
}

// Current returns the currently open transaction, or the Dummy sentinel if
// none is open. Mirrors TransactionManager.current (getter form).
func (m *Manager) Current(owner affinity.Token) (Transaction, error) {
	if err := m.guard.Check(owner); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return NewDummy(m.lock, m.owner), nil
	}
	return m.current, nil
}

// Begin opens a new transaction: a Root if none is open, otherwise a
// SavePoint nested under whatever is currently open. Mirrors
// TransactionManager.begin.
func (m *Manager) Begin(owner affinity.Token) (Transaction, error) {
	if err := m.guard.Check(owner); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		m.current = NewRoot(m.lock, m.owner)
	} else {
		m.current = NewSavePoint(m.lock, m.owner, m.current)
	}
	return m.current, nil
}

// Finish finishes the current transaction and pops back to its parent (or
// to none). Mirrors TransactionManager.finish.
func (m *Manager) Finish(ctx context.Context, cache cacheport.Cache, owner affinity.Token) error {
	if err := m.guard.Check(owner); err != nil {
		return err
	}
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	if cur == nil {
		return fmt.Errorf("txn: Finish called with no transaction open")
	}
	if err := cur.Finish(ctx, cache); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = cur.Parent()
	m.mu.Unlock()
	return nil
}

// Flush finishes every nested transaction down to none. Mirrors
// TransactionManager.flush.
func (m *Manager) Flush(ctx context.Context, cache cacheport.Cache, owner affinity.Token) error {
	for {
		m.mu.Lock()
		open := m.current != nil
		m.mu.Unlock()
		if !open {
			return nil
		}
		if err := m.Finish(ctx, cache, owner); err != nil {
			return err
		}
	}
}
