package noncecache

import (
	"sync"

	"github.com/IvanBrykalov/noncecache/internal/util"
	"github.com/IvanBrykalov/noncecache/policy"
)

// shard is an independent partition of one Cache's entries: its own
// lock, map, and intrusive MRU/LRU list, fronted by a pluggable eviction
// policy. Partitioning entries this way means ordering is only exact
// within a shard, not globally, and the total resident count never
// exceeds the sum of per-shard capacities. That sum equals the configured
// entry limit only with a single shard; with several shards the limit is
// ceil-split, so the sum can exceed it.
type shard[Query comparable, Result any] struct {
	mu   sync.RWMutex
	m    map[Query]*node[Query, Result]
	head *node[Query, Result] // MRU
	tail *node[Query, Result] // LRU
	len  int
	cap  int

	pol     policy.ShardPolicy[Query, Result]
	metrics Metrics

	_       util.CacheLinePad
	evicted util.PaddedAtomicUint64
}

func newShard[Query comparable, Result any](capacity int, pol policy.Policy[Query, Result], metrics Metrics) *shard[Query, Result] {
	s := &shard[Query, Result]{
		m:       make(map[Query]*node[Query, Result], capacity),
		cap:     capacity,
		metrics: metrics,
	}
	s.pol = pol.New(shardHooks[Query, Result]{s: s})
	return s
}

// get looks up query without inserting. The policy's OnGet hook
// (promotion to MRU) is NOT invoked here: that decision belongs to the
// caller, which only wants to promote on a protocol hit, not on every
// raw lookup (the nonce-epoch retry loop in consistency.go may look up
// the same shard more than once per call).
func (s *shard[Query, Result]) get(q Query) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.m[q]
	if !ok {
		var zero Result
		return zero, false
	}
	return n.val, true
}

// promote marks query as recently used according to the active policy.
func (s *shard[Query, Result]) promote(q Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.m[q]; ok {
		s.pol.OnGet(n)
	}
}

// put inserts or replaces query→val and enforces the shard's capacity.
func (s *shard[Query, Result]) put(q Query, val Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.m[q]; ok {
		n.val = val
		s.pol.OnUpdate(n)
		s.enforceLimitLocked()
		return
	}

	n := &node[Query, Result]{key: q, val: val}
	s.m[q] = n
	if ev := s.pol.OnAdd(n); ev != nil {
		s.evictNodeLocked(ev.(*node[Query, Result]))
	}
	s.enforceLimitLocked()
}

// delete removes query if present.
func (s *shard[Query, Result]) delete(q Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.m[q]; ok {
		s.pol.OnRemove(n)
		s.removeNodeLocked(n)
		delete(s.m, q)
		s.metrics.Size(s.len)
	}
}

// clear drops every entry in this shard.
func (s *shard[Query, Result]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[Query]*node[Query, Result], s.cap)
	s.head, s.tail = nil, nil
	s.len = 0
}

func (s *shard[Query, Result]) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len
}

// -------------------- internals (mu held) --------------------

func (s *shard[Query, Result]) insertFrontLocked(n *node[Query, Result]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
}

func (s *shard[Query, Result]) moveToFrontLocked(n *node[Query, Result]) {
	if n == s.head {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

func (s *shard[Query, Result]) removeNodeLocked(n *node[Query, Result]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
}

func (s *shard[Query, Result]) backLocked() *node[Query, Result] { return s.tail }

func (s *shard[Query, Result]) evictNodeLocked(n *node[Query, Result]) {
	s.pol.OnRemove(n)
	s.removeNodeLocked(n)
	delete(s.m, n.key)
	s.evicted.Add(1)
	s.metrics.Evict()
}

func (s *shard[Query, Result]) enforceLimitLocked() {
	for s.len > s.cap {
		if tail := s.backLocked(); tail != nil {
			s.evictNodeLocked(tail)
		} else {
			break
		}
	}
	s.metrics.Size(s.len)
}

// -------------------- policy hooks --------------------

type shardHooks[Query comparable, Result any] struct{ s *shard[Query, Result] }

func (h shardHooks[Query, Result]) MoveToFront(x policy.Node[Query, Result]) {
	h.s.moveToFrontLocked(x.(*node[Query, Result]))
}
func (h shardHooks[Query, Result]) PushFront(x policy.Node[Query, Result]) {
	h.s.insertFrontLocked(x.(*node[Query, Result]))
}
func (h shardHooks[Query, Result]) Remove(x policy.Node[Query, Result]) {
	h.s.removeNodeLocked(x.(*node[Query, Result]))
}
func (h shardHooks[Query, Result]) Back() policy.Node[Query, Result] { return h.s.backLocked() }
func (h shardHooks[Query, Result]) Len() int                        { return h.s.len }
