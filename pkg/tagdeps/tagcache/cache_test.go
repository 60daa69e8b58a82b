package tagcache

import (
	"context"
	"testing"
	"time"

	"github.com/vitaliisemenov/tagcache/internal/backend/memstore"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/affinity"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/deps"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/locks"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/relations"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/txn"
)

func newWrapper(t *testing.T, level locks.Level) *Wrapper {
	t.Helper()
	cache, err := memstore.New(1000)
	if err != nil {
		t.Fatalf("memstore.New: %v", err)
	}
	lock, err := locks.Make(level, 0, nil)
	if err != nil {
		t.Fatalf("locks.Make: %v", err)
	}
	owner := affinity.NewToken()
	rel := relations.New(owner)
	txns := txn.New(lock, owner)
	return New(cache, owner, rel, txns)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	tags := deps.NewTags("a", "b")
	packed, err := Pack([]byte("hello"), tags)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	value, dependency, ok := Unpack(packed)
	if !ok {
		t.Fatal("expected Unpack to recognize a payload this package packed")
	}
	if string(value) != "hello" {
		t.Fatalf("unexpected value after round trip: %q", value)
	}
	got, ok := dependency.(*deps.Tags)
	if !ok {
		t.Fatalf("expected the dependency to round-trip as *deps.Tags, got %T", dependency)
	}
	if len(got.Names()) != 2 {
		t.Fatalf("expected 2 tag names after round trip, got %v", got.Names())
	}
}

func TestUnpackRejectsForeignPayload(t *testing.T) {
	if _, _, ok := Unpack([]byte("not a gob payload")); ok {
		t.Fatal("expected Unpack to report ok=false for a non-Packed payload")
	}
}

func TestSetThenGetRoundTrips(t *testing.T) {
	ctx := context.Background()
	w := newWrapper(t, locks.ReadCommitted)

	if err := w.Set(ctx, "greeting", []byte("hi"), deps.NewTags("greetings"), time.Hour, 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, ok, err := w.Get(ctx, "greeting", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit right after Set")
	}
	if string(value) != "hi" {
		t.Fatalf("unexpected value: %q", value)
	}
}

func TestGetMissingKeyIsMiss(t *testing.T) {
	ctx := context.Background()
	w := newWrapper(t, locks.ReadCommitted)

	_, ok, err := w.Get(ctx, "never-set", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected a miss for a key that was never set")
	}
}

func TestInvalidateDependencyForcesMiss(t *testing.T) {
	ctx := context.Background()
	w := newWrapper(t, locks.ReadCommitted)

	if err := w.Set(ctx, "page", []byte("rendered"), deps.NewTags("page:1"), time.Hour, 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, err := w.Get(ctx, "page", 1); err != nil || !ok {
		t.Fatalf("expected a hit before invalidation, ok=%v err=%v", ok, err)
	}

	if err := w.InvalidateDependency(ctx, deps.NewTags("page:1"), 1); err != nil {
		t.Fatalf("InvalidateDependency: %v", err)
	}

	if _, ok, err := w.Get(ctx, "page", 1); err != nil {
		t.Fatalf("Get after invalidate: %v", err)
	} else if ok {
		t.Fatal("expected a miss after invalidating the page's tag")
	}
}

func TestGetOrSetPopulatesOnMiss(t *testing.T) {
	ctx := context.Background()
	w := newWrapper(t, locks.ReadCommitted)
	loaderCalls := 0

	loader := func(ctx context.Context) ([]byte, deps.Dependency, error) {
		loaderCalls++
		return []byte("computed"), deps.NewTags("computed-tag"), nil
	}

	value, err := w.GetOrSet(ctx, "expensive", loader, time.Hour, 1)
	if err != nil {
		t.Fatalf("GetOrSet: %v", err)
	}
	if string(value) != "computed" {
		t.Fatalf("unexpected value: %q", value)
	}

	value2, err := w.GetOrSet(ctx, "expensive", loader, time.Hour, 1)
	if err != nil {
		t.Fatalf("GetOrSet second call: %v", err)
	}
	if string(value2) != "computed" {
		t.Fatalf("unexpected cached value: %q", value2)
	}
	if loaderCalls != 1 {
		t.Fatalf("expected loader to run exactly once across both calls, ran %d times", loaderCalls)
	}
}

func TestGetManyReturnsOnlyHits(t *testing.T) {
	ctx := context.Background()
	w := newWrapper(t, locks.ReadCommitted)

	if err := w.Set(ctx, "k1", []byte("v1"), deps.NewTags("t1"), time.Hour, 1); err != nil {
		t.Fatalf("Set k1: %v", err)
	}
	if err := w.Set(ctx, "k2", []byte("v2"), deps.NewTags("t2"), time.Hour, 1); err != nil {
		t.Fatalf("Set k2: %v", err)
	}

	result, err := w.GetMany(ctx, []string{"k1", "k2", "k3"}, 1)
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 hits out of 3 keys, got %v", result)
	}
	if string(result["k1"]) != "v1" || string(result["k2"]) != "v2" {
		t.Fatalf("unexpected values: %v", result)
	}
}

func TestCloseFlushesAndClears(t *testing.T) {
	ctx := context.Background()
	w := newWrapper(t, locks.ReadCommitted)

	if err := w.Set(ctx, "k", []byte("v"), deps.NewDummy(), time.Hour, 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
