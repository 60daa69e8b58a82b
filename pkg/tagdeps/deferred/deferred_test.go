package deferred

import (
	"context"
	"fmt"
	"testing"
)

func TestGetSingleCriterion(t *testing.T) {
	calls := 0
	d := New("crit-a", []string{"k1", "k2"}, func(ctx context.Context, keys []string) (map[string][]byte, error) {
		calls++
		out := make(map[string][]byte, len(keys))
		for _, k := range keys {
			out[k] = []byte(k)
		}
		return out, nil
	}, func(map[string][]byte) {})

	result, err := d.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one executor call, got %d", calls)
	}
	if string(result["k1"]) != "k1" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestMergeSharedCriterionRunsExecutorOnce(t *testing.T) {
	calls := 0
	executor := func(ctx context.Context, keys []string) (map[string][]byte, error) {
		calls++
		out := make(map[string][]byte, len(keys))
		for _, k := range keys {
			out[k] = []byte(k)
		}
		return out, nil
	}

	var gotA, gotB map[string][]byte
	a := New("tags", []string{"a"}, executor, func(r map[string][]byte) { gotA = r })
	b := New("tags", []string{"b"}, executor, func(r map[string][]byte) { gotB = r })

	a.Merge(b)
	if _, err := a.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected the shared criterion's executor to run once, got %d calls", calls)
	}
	if _, ok := gotA["a"]; !ok {
		t.Fatalf("expected merged batch to include key a: %v", gotA)
	}
	if _, ok := gotB["b"]; !ok {
		t.Fatalf("expected merged batch to include key b: %v", gotB)
	}
}

func TestMergeDistinctCriteriaRunBothExecutors(t *testing.T) {
	var ran []string
	mkExecutor := func(name string) Executor {
		return func(ctx context.Context, keys []string) (map[string][]byte, error) {
			ran = append(ran, name)
			return map[string][]byte{}, nil
		}
	}

	a := New("tagversions", []string{"a"}, mkExecutor("tagversions"), func(map[string][]byte) {})
	b := New("tagstates", []string{"b"}, mkExecutor("tagstates"), func(map[string][]byte) {})

	a.Merge(b)
	if _, err := a.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(ran) != 2 {
		t.Fatalf("expected both distinct criteria to run, got %v", ran)
	}
}

func TestMergeAbsorbsExistingParentChain(t *testing.T) {
	var ran []string
	mkExecutor := func(name string) Executor {
		return func(ctx context.Context, keys []string) (map[string][]byte, error) {
			ran = append(ran, name)
			return map[string][]byte{}, nil
		}
	}

	x := New("x", []string{"x1"}, mkExecutor("x"), func(map[string][]byte) {})
	y := New("y", []string{"y1"}, mkExecutor("y"), func(map[string][]byte) {})
	x.Merge(y)

	z := New("z", []string{"z1"}, mkExecutor("z"), func(map[string][]byte) {})
	z.Merge(x)

	if _, err := z.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(ran) != 3 {
		t.Fatalf("expected all three criteria across the absorbed chain to run, got %v", ran)
	}
}

func TestGetPropagatesExecutorError(t *testing.T) {
	wantErr := fmt.Errorf("boom")
	d := New("crit", []string{"k"}, func(ctx context.Context, keys []string) (map[string][]byte, error) {
		return nil, wantErr
	}, func(map[string][]byte) {})

	if _, err := d.Get(context.Background()); err != wantErr {
		t.Fatalf("expected executor error to propagate, got %v", err)
	}
}
