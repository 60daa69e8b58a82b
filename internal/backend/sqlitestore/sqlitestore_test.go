package sqlitestore

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), &Config{Path: ":memory:", MaxOpenConns: 1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "k", []byte("v"), time.Hour, 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "k", 1)
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("Get: value=%q ok=%v err=%v", v, ok, err)
	}

	if err := s.Delete(ctx, "k", 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k", 1); ok {
		t.Fatal("expected a miss after Delete")
	}
}

func TestSetOverwritesExistingKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "k", []byte("old"), time.Hour, 1); err != nil {
		t.Fatalf("Set old: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("new"), time.Hour, 1); err != nil {
		t.Fatalf("Set new: %v", err)
	}
	v, ok, err := s.Get(ctx, "k", 1)
	if err != nil || !ok || string(v) != "new" {
		t.Fatalf("expected the upsert to overwrite the value, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestGetExpiredEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "k", []byte("v"), time.Nanosecond, 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, ok, err := s.Get(ctx, "k", 1); err != nil || ok {
		t.Fatalf("expected expired entry to miss, ok=%v err=%v", ok, err)
	}
}

func TestGetManySetManyDeleteMany(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	items := map[string][]byte{"a": []byte("1"), "b": []byte("2")}
	if err := s.SetMany(ctx, items, time.Hour, 1); err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	got, err := s.GetMany(ctx, []string{"a", "b", "c"}, 1)
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 hits, got %v", got)
	}

	if err := s.DeleteMany(ctx, []string{"a", "b"}, 1); err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if got, _ := s.GetMany(ctx, []string{"a", "b"}, 1); len(got) != 0 {
		t.Fatalf("expected no hits after DeleteMany, got %v", got)
	}
}

func TestBumpVersionMovesValue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "k", []byte("v"), time.Hour, 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	newVersion, err := s.BumpVersion(ctx, "k", 1, 1)
	if err != nil {
		t.Fatalf("BumpVersion: %v", err)
	}
	if newVersion != 2 {
		t.Fatalf("expected new version 2, got %d", newVersion)
	}
	if _, ok, _ := s.Get(ctx, "k", 1); ok {
		t.Fatal("expected the old version's key to be gone after BumpVersion")
	}
	v, ok, err := s.Get(ctx, "k", 2)
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("expected the value under the new version, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestStore(t)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestMigrationsCreateSchema(t *testing.T) {
	s := newTestStore(t)
	var name string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='cache_entries'`).Scan(&name)
	if err != nil {
		t.Fatalf("expected the cache_entries table to exist after migration, query failed: %v", err)
	}
}
