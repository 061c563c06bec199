package noncecache

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/IvanBrykalov/noncecache/registry/memregistry"
)

// With VERIFY enabled and a well-behaved Recompute, every query succeeds
// and pays for one extra Recompute call per miss.
func TestVerify_ConsistentNeverPanics(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	reg.Set("test.nonce", "1")

	var calls int64
	c, err := New(Options[string, int]{
		MaxEntries:   16,
		PropertyName: "test.nonce",
		Registry:     reg,
		Verify:       true,
		Recompute: func(_ context.Context, q string) (int, bool, error) {
			atomic.AddInt64(&calls, 1)
			return len(q), true, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	v, ok, err := c.Query(context.Background(), "hello")
	if err != nil || !ok || v != 5 {
		t.Fatalf("v=%d ok=%v err=%v", v, ok, err)
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Fatalf("expected the primary fetch plus one verify fetch, got %d", got)
	}
}

// A Recompute that returns a different answer for the same query, with
// the nonce unchanged, is exactly what VERIFY exists to catch.
func TestVerify_MismatchPanics(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	reg.Set("test.nonce", "1")

	call := 0
	c, err := New(Options[string, int]{
		MaxEntries:   16,
		PropertyName: "test.nonce",
		Registry:     reg,
		Verify:       true,
		Recompute: func(_ context.Context, _ string) (int, bool, error) {
			call++
			return call, true, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected VERIFY to panic on a changing result under a stable nonce")
		}
	}()
	c.Query(context.Background(), "k")
}

// If the nonce moved on in between the primary fetch and the verify
// fetch, the comparison is skipped rather than flagged as a mismatch.
func TestVerify_SkippedWhenNonceMovedOn(t *testing.T) {
	t.Parallel()

	reg := memregistry.New()
	reg.Set("test.nonce", "1")

	call := 0
	c, err := New(Options[string, int]{
		MaxEntries:   16,
		PropertyName: "test.nonce",
		Registry:     reg,
		Verify:       true,
		Recompute: func(_ context.Context, _ string) (int, bool, error) {
			call++
			if call == 1 {
				reg.Set("test.nonce", "2")
			}
			return call, true, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Must not panic even though the two recomputes disagree.
	c.Query(context.Background(), "k")
}
