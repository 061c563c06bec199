//go:build go1.18

package noncecache

import (
	"strings"
	"testing"

	"github.com/IvanBrykalov/noncecache/policy/lru"
)

// Fuzz basic put/get/delete semantics on a shard under arbitrary string
// keys. Guards against panics and checks the entries invariant holds
// after each operation.
func FuzzShard_PutGetDelete(f *testing.F) {
	f.Add("", "")
	f.Add("a", "1")
	f.Add("αβγ", "δ")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		const limit = 1 << 10
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		s := newShard[string, string](8, lru.New[string, string](), NoopMetrics{})

		s.put(k, v)
		got, ok := s.get(k)
		if !ok || got != v {
			t.Fatalf("after put/get: want %q, got %q ok=%v", v, got, ok)
		}
		if s.size() > s.cap {
			t.Fatalf("size %d exceeds capacity %d", s.size(), s.cap)
		}

		s.delete(k)
		if _, ok := s.get(k); ok {
			t.Fatal("key must be absent after delete")
		}
	})
}

// Inserting beyond capacity must never let size exceed cap.
func FuzzShard_NeverExceedsCapacity(f *testing.F) {
	f.Add(20)
	f.Fuzz(func(t *testing.T, n int) {
		if n < 0 {
			n = -n
		}
		n = n % 500

		s := newShard[int, int](4, lru.New[int, int](), NoopMetrics{})
		for i := 0; i < n; i++ {
			s.put(i, i)
			if s.size() > s.cap {
				t.Fatalf("size %d exceeds capacity %d after inserting %d entries", s.size(), s.cap, i+1)
			}
		}
	})
}
