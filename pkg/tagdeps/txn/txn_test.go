package txn

import (
	"context"
	"testing"

	"github.com/vitaliisemenov/tagcache/internal/backend/memstore"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/affinity"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/deps"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/locks"
)

func newStore(t *testing.T) *memstore.Store {
	t.Helper()
	s, err := memstore.New(100)
	if err != nil {
		t.Fatalf("memstore.New: %v", err)
	}
	return s
}

func newManager(t *testing.T, owner affinity.Token) *Manager {
	t.Helper()
	lock, err := locks.Make(locks.RepeatableRead, 0, nil)
	if err != nil {
		t.Fatalf("locks.Make: %v", err)
	}
	return New(lock, owner)
}

func TestCurrentWithNoOpenTransactionIsDummy(t *testing.T) {
	owner := affinity.NewToken()
	m := newManager(t, owner)

	cur, err := m.Current(owner)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.Active() {
		t.Fatal("expected the sentinel transaction to report Active()==false")
	}
}

func TestBeginOpensRootThenSavePoint(t *testing.T) {
	owner := affinity.NewToken()
	m := newManager(t, owner)

	root, err := m.Begin(owner)
	if err != nil {
		t.Fatalf("Begin root: %v", err)
	}
	if root.Parent() != nil {
		t.Fatal("expected the first Begin to open a parentless root transaction")
	}

	nested, err := m.Begin(owner)
	if err != nil {
		t.Fatalf("Begin nested: %v", err)
	}
	if nested.Parent() != root {
		t.Fatal("expected the second Begin to nest a savepoint under the root")
	}
}

func TestFinishPopsToParent(t *testing.T) {
	ctx := context.Background()
	cache := newStore(t)
	owner := affinity.NewToken()
	m := newManager(t, owner)

	root, err := m.Begin(owner)
	if err != nil {
		t.Fatalf("Begin root: %v", err)
	}
	if _, err := m.Begin(owner); err != nil {
		t.Fatalf("Begin nested: %v", err)
	}
	if err := m.Finish(ctx, cache, owner); err != nil {
		t.Fatalf("Finish nested: %v", err)
	}

	cur, err := m.Current(owner)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur != root {
		t.Fatal("expected Finish to pop the savepoint back to the root")
	}
}

func TestFinishWithNoneOpenErrors(t *testing.T) {
	owner := affinity.NewToken()
	m := newManager(t, owner)

	if err := m.Finish(context.Background(), newStore(t), owner); err == nil {
		t.Fatal("expected Finish with no open transaction to error")
	}
}

func TestFlushClosesEveryNestedLevel(t *testing.T) {
	ctx := context.Background()
	cache := newStore(t)
	owner := affinity.NewToken()
	m := newManager(t, owner)

	if _, err := m.Begin(owner); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := m.Begin(owner); err != nil {
		t.Fatalf("Begin nested: %v", err)
	}
	if err := m.Flush(ctx, cache, owner); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	cur, err := m.Current(owner)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.Active() {
		t.Fatal("expected Flush to leave no transaction open")
	}
}

func TestSavePointAddDependencyForwardsToRoot(t *testing.T) {
	ctx := context.Background()
	cache := newStore(t)
	owner := affinity.NewToken()
	m := newManager(t, owner)

	root, err := m.Begin(owner)
	if err != nil {
		t.Fatalf("Begin root: %v", err)
	}
	nested, err := m.Begin(owner)
	if err != nil {
		t.Fatalf("Begin nested: %v", err)
	}

	tags := deps.NewTags("shared")
	if err := nested.AddDependency(ctx, cache, tags, 1); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}

	if got := root.(*Root).dependencies[1]; got != deps.Dependency(tags) {
		t.Fatalf("expected the savepoint's dependency to be forwarded to the root, got %v", got)
	}

	// Finishing the savepoint is a no-op; finishing the root releases the
	// forwarded tag under the manager's lock strategy.
	if err := m.Finish(ctx, cache, owner); err != nil {
		t.Fatalf("Finish nested: %v", err)
	}
	if err := m.Finish(ctx, cache, owner); err != nil {
		t.Fatalf("Finish root: %v", err)
	}
	_ = root
}

func TestWrongOwnerRejected(t *testing.T) {
	owner := affinity.NewToken()
	other := affinity.NewToken()
	m := newManager(t, owner)

	if _, err := m.Current(other); err == nil {
		t.Fatal("expected Current from a different owner token to be rejected")
	}
}
