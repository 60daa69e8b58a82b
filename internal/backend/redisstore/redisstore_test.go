package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewFromClient(client, nil)
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

func TestGetMissIsNotAnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, ok, err := s.Get(ctx, "never-set", 1); err != nil || ok {
		t.Fatalf("expected a clean miss, ok=%v err=%v", ok, err)
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

func TestVersionsAreNamespaced(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "k", []byte("v1"), time.Hour, 1); err != nil {
		t.Fatalf("Set v1: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v2"), time.Hour, 2); err != nil {
		t.Fatalf("Set v2: %v", err)
	}
	v1, _, _ := s.Get(ctx, "k", 1)
	v2, _, _ := s.Get(ctx, "k", 2)
	if string(v1) != "v1" || string(v2) != "v2" {
		t.Fatalf("expected distinct values per version, got v1=%q v2=%q", v1, v2)
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

func TestNewRejectsUnreachableAddr(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cfg := &Config{Addr: "127.0.0.1:1"}
	if _, err := New(ctx, cfg, nil); err == nil {
		t.Fatal("expected New to fail against an address nothing is listening on")
	}
}
