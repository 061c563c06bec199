package noncecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/IvanBrykalov/noncecache/coordinator"
	"github.com/IvanBrykalov/noncecache/registry"
	"github.com/IvanBrykalov/noncecache/registry/memregistry"
	"golang.org/x/sync/errgroup"
)

// bindCoordinator points the process-wide coordinator at reg for the
// duration of a test. The coordinator's bound registry is shared package
// state, so tests that use it must not run with t.Parallel() against
// each other.
func bindCoordinator(t *testing.T, reg registry.Registry) {
	t.Helper()
	coordinator.Bind(reg)
}

func newTestCache(t *testing.T, reg *memregistry.Registry, recompute Recomputer[string, int]) Cache[string, int] {
	t.Helper()
	c, err := New(Options[string, int]{
		MaxEntries:   64,
		PropertyName: "test.nonce",
		Registry:     reg,
		Recompute:    recompute,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// A fresh property (never set in the registry) is Unset: every query
// bypasses the cache and calls Recompute every time.
func TestQuery_BypassWhenUnset(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	var calls int64
	c := newTestCache(t, reg, func(_ context.Context, q string) (int, bool, error) {
		atomic.AddInt64(&calls, 1)
		return len(q), true, nil
	})

	for i := 0; i < 5; i++ {
		v, ok, err := c.Query(context.Background(), "hello")
		if err != nil || !ok || v != 5 {
			t.Fatalf("Query #%d: v=%d ok=%v err=%v", i, v, ok, err)
		}
	}
	if got := atomic.LoadInt64(&calls); got != 5 {
		t.Fatalf("expected recompute every bypassed call, got %d calls", got)
	}
}

// Once the registry publishes a live nonce, a repeated query is answered
// from the cache without a second Recompute call.
func TestQuery_HitAfterNonceLive(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	reg.Set("test.nonce", "1")

	var calls int64
	c := newTestCache(t, reg, func(_ context.Context, q string) (int, bool, error) {
		atomic.AddInt64(&calls, 1)
		return len(q), true, nil
	})

	for i := 0; i < 5; i++ {
		v, ok, err := c.Query(context.Background(), "hello")
		if err != nil || !ok || v != 5 {
			t.Fatalf("Query #%d: v=%d ok=%v err=%v", i, v, ok, err)
		}
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("expected exactly one recompute, got %d", got)
	}
}

// Publishing a new nonce after a hit discards the stale entry: the next
// query recomputes.
func TestQuery_InvalidationDropsEntry(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	reg.Set("test.nonce", "1")

	var calls int64
	c := newTestCache(t, reg, func(_ context.Context, q string) (int, bool, error) {
		n := atomic.AddInt64(&calls, 1)
		return int(n), true, nil
	})

	v1, _, _ := c.Query(context.Background(), "k")
	v2, _, _ := c.Query(context.Background(), "k")
	if v1 != v2 {
		t.Fatalf("expected cached hit, got %d then %d", v1, v2)
	}

	reg.Set("test.nonce", "2")

	v3, _, _ := c.Query(context.Background(), "k")
	if v3 == v2 {
		t.Fatalf("expected a fresh recompute after invalidation, still got %d", v3)
	}
}

// DisableLocal forces every subsequent query to bypass, regardless of
// what the registry holds.
func TestQuery_DisableLocalBypasses(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	reg.Set("test.nonce", "1")

	var calls int64
	c := newTestCache(t, reg, func(_ context.Context, _ string) (int, bool, error) {
		atomic.AddInt64(&calls, 1)
		return 1, true, nil
	})

	c.Query(context.Background(), "k")
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("expected one call before disable, got %d", got)
	}

	c.DisableLocal()
	if !c.IsDisabledLocal() {
		t.Fatal("IsDisabledLocal should report true")
	}

	c.Query(context.Background(), "k")
	c.Query(context.Background(), "k")
	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Fatalf("expected every post-disable call to bypass, got %d", got)
	}
}

// A failing Recompute propagates the error unchanged and caches nothing.
func TestQuery_RecomputeErrorPropagates(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	reg.Set("test.nonce", "1")
	wantErr := errors.New("boom")

	c := newTestCache(t, reg, func(_ context.Context, _ string) (int, bool, error) {
		return 0, false, wantErr
	})

	_, _, err := c.Query(context.Background(), "k")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected propagated error, got %v", err)
	}
}

// A Recompute that returns ok=false is not cached: a later call recomputes again.
func TestQuery_NoNegativeCaching(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	reg.Set("test.nonce", "1")

	var calls int64
	c := newTestCache(t, reg, func(_ context.Context, _ string) (int, bool, error) {
		atomic.AddInt64(&calls, 1)
		return 0, false, nil
	})

	for i := 0; i < 3; i++ {
		_, ok, err := c.Query(context.Background(), "k")
		if err != nil || ok {
			t.Fatalf("expected ok=false, err=nil; got ok=%v err=%v", ok, err)
		}
	}
	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Fatalf("a negative result must never be served from cache, got %d calls", got)
	}
}

// Refresh's Unchanged outcome is a pure shortcut: it never re-reads the
// nonce and never calls Recompute.
func TestQuery_RefreshUnchangedShortcut(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	reg.Set("test.nonce", "1")

	var recomputes, refreshes int64
	c, err := New(Options[string, int]{
		MaxEntries:   64,
		PropertyName: "test.nonce",
		Registry:     reg,
		Recompute: func(_ context.Context, _ string) (int, bool, error) {
			atomic.AddInt64(&recomputes, 1)
			return 1, true, nil
		},
		Refresh: func(_ context.Context, old int, _ string) (int, RefreshAction) {
			atomic.AddInt64(&refreshes, 1)
			return old, Unchanged
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Query(context.Background(), "k")
	c.Query(context.Background(), "k")
	c.Query(context.Background(), "k")

	if got := atomic.LoadInt64(&recomputes); got != 1 {
		t.Fatalf("expected a single recompute, got %d", got)
	}
	if got := atomic.LoadInt64(&refreshes); got != 2 {
		t.Fatalf("expected a refresh call on each of the two later hits, got %d", got)
	}
}

// Refresh's Evict outcome removes the entry; the next query recomputes.
func TestQuery_RefreshEvict(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	reg.Set("test.nonce", "1")

	var calls int64
	first := true
	c, err := New(Options[string, int]{
		MaxEntries:   64,
		PropertyName: "test.nonce",
		Registry:     reg,
		Recompute: func(_ context.Context, _ string) (int, bool, error) {
			n := atomic.AddInt64(&calls, 1)
			return int(n), true, nil
		},
		Refresh: func(_ context.Context, old int, _ string) (int, RefreshAction) {
			if first {
				first = false
				return old, Evict
			}
			return old, Unchanged
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Query(context.Background(), "k") // miss, caches call #1
	_, ok, _ := c.Query(context.Background(), "k")
	if ok {
		t.Fatal("expected the evicted hit to report ok=false")
	}
	v, ok, _ := c.Query(context.Background(), "k")
	if !ok || v != 2 {
		t.Fatalf("expected a fresh recompute after eviction, got v=%d ok=%v", v, ok)
	}
}

// Clear drops entries but not the disabled flag or nonce bookkeeping.
func TestCache_ClearPreservesDisabled(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	reg.Set("test.nonce", "1")
	c := newTestCache(t, reg, func(_ context.Context, _ string) (int, bool, error) {
		return 1, true, nil
	})

	c.DisableLocal()
	c.Clear()
	if !c.IsDisabledLocal() {
		t.Fatal("Clear must not reset disabled-local")
	}
}

// InvalidateCache routes through the coordinator, which writes to the
// registry passed to coordinator.Bind; here that is the same registry the
// cache was built with.
func TestCache_InvalidateCacheRoundTrips(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	reg.Set("test.nonce", "1")

	var calls int64
	c := newTestCache(t, reg, func(_ context.Context, _ string) (int, bool, error) {
		atomic.AddInt64(&calls, 1)
		return 1, true, nil
	})

	c.Query(context.Background(), "k")
	c.Query(context.Background(), "k")
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("expected cached hit before invalidation, got %d calls", got)
	}

	bindCoordinator(t, reg)
	c.InvalidateCache()

	c.Query(context.Background(), "k")
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Fatalf("expected a recompute after InvalidateCache, got %d calls", got)
	}
}

// N concurrent queries for distinct keys, plus a concurrent burst of
// invalidations, must never deadlock or panic under -race.
func TestQuery_ConcurrentMixedWorkload(t *testing.T) {
	reg := memregistry.New()
	reg.Set("test.nonce", "1")
	bindCoordinator(t, reg)

	c := newTestCache(t, reg, func(_ context.Context, q string) (int, bool, error) {
		return len(q), true, nil
	})

	var wg sync.WaitGroup
	keys := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := keys[i%len(keys)]
			for j := 0; j < 50; j++ {
				c.Query(context.Background(), k)
			}
		}(i)
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c.InvalidateCache()
			}
		}()
	}
	wg.Wait()
}

// Every goroutine querying the same key under a stable nonce must observe
// the correct value, with errors collected via an errgroup.
func TestQuery_ConcurrentSameKeyAllCorrect(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	reg.Set("test.nonce", "1")

	c := newTestCache(t, reg, func(_ context.Context, q string) (int, bool, error) {
		return len(q), true, nil
	})

	const n = 64
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			v, ok, err := c.Query(context.Background(), "abcd")
			if err != nil {
				return err
			}
			if !ok || v != 4 {
				return fmt.Errorf("got (%d, %v), want (4, true)", v, ok)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

// entries.size() <= max_entries at every observable moment (invariant 6),
// with exact LRU order on the default single-shard cache: inserting a
// third key over a capacity of 2 evicts the least-recently-used one.
func TestQuery_LRUEvictionRespectsMaxEntries(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	reg.Set("test.nonce", "1")

	var calls []string
	c, err := New(Options[string, int]{
		MaxEntries:   2,
		PropertyName: "test.nonce",
		Registry:     reg,
		Recompute: func(_ context.Context, q string) (int, bool, error) {
			calls = append(calls, q)
			return len(q), true, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	c.Query(ctx, "1")
	c.Query(ctx, "2")
	c.Query(ctx, "3") // evicts "1" (least recently used)

	if got := c.Len(); got > 2 {
		t.Fatalf("Len() = %d, want <= 2 (MaxEntries)", got)
	}

	calls = nil
	c.Query(ctx, "2")
	c.Query(ctx, "3")
	if len(calls) != 0 {
		t.Fatalf("expected 2 and 3 still cached, got recomputes: %v", calls)
	}

	calls = nil
	c.Query(ctx, "1")
	if len(calls) != 1 {
		t.Fatalf("expected 1 to have been evicted and recomputed, got calls: %v", calls)
	}
}
