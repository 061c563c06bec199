// Package noncecache implements the PerInstanceCache (C3): a bounded LRU
// keyed by Query→Result, plus the nonce consistency protocol on Query.
package noncecache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/noncecache/coordinator"
	"github.com/IvanBrykalov/noncecache/internal/util"
	"github.com/IvanBrykalov/noncecache/nonce"
	"github.com/IvanBrykalov/noncecache/policy/lru"
	"github.com/google/go-cmp/cmp"
)

func defaultDebugCompare[Result any](cached, fetched Result) bool {
	return cmp.Equal(cached, fetched)
}

func defaultQueryToString[Query any](q Query) string {
	return fmt.Sprintf("%v", q)
}

// cacheImpl is the concrete Cache[Query,Result]. Entries are partitioned
// across internal shards, each with its own lock, so that the common
// case — no invalidation in flight — only ever takes one shard's lock on
// the hot path. The nonce itself (lastSeenNonce) is an atomic.Int64 so it
// can be read on that hot path without any lock at all; clearMu is the
// narrower instance lock, taken only around (a) the rare
// clear-all-shards transition on a nonce change, (b) the brief
// check-then-mutate commit of a single shard's entry after a fetch, and
// (c) Clear and DisableLocal — never across a Recompute or Refresh call.
type cacheImpl[Query comparable, Result any] struct {
	opt Options[Query, Result]

	handle *nonce.Handle

	shards []*shard[Query, Result]
	hash   func(Query) uint64

	clearMu       sync.Mutex
	lastSeenNonce atomic.Int64 // nonce.Unset initially

	disabledLocally atomic.Bool
}

// New constructs a Cache bound to opt.PropertyName, reading nonces
// through opt.Registry. InvalidateCache and DisableSystemWide write
// through the coordinator, i.e. to the registry passed to
// coordinator.Bind, not to opt.Registry.
func New[Query comparable, Result any](opt Options[Query, Result]) (Cache[Query, Result], error) {
	if opt.Registry == nil {
		return nil, ErrMissingRegistry
	}
	if opt.Recompute == nil {
		return nil, ErrMissingRecompute
	}
	if opt.PropertyName == "" {
		return nil, ErrMissingPropertyName
	}
	if opt.MaxEntries <= 0 {
		panic("noncecache: Options.MaxEntries must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = NoopLogger{}
	}
	if opt.Policy == nil {
		opt.Policy = lru.New[Query, Result]()
	}
	if opt.Refresh == nil {
		opt.Refresh = func(_ context.Context, old Result, _ Query) (Result, RefreshAction) {
			return old, Unchanged
		}
	}
	if opt.DebugCompare == nil {
		opt.DebugCompare = defaultDebugCompare[Result]
	}
	if opt.QueryToString == nil {
		opt.QueryToString = defaultQueryToString[Query]
	}
	if opt.CacheName == "" {
		opt.CacheName = opt.PropertyName
	}

	// Sharding is opt-in. The default (Options.Shards unset) is a single
	// shard sized exactly to MaxEntries, which gives both an exact global
	// entry-count bound and exact LRU order. Requesting multiple shards
	// trades that exactness for concurrency: a ceil-split per-shard cap
	// sums to at least MaxEntries, so the global count is only
	// approximately bounded and recency is only approximate across shards
	// (the same trade-off the teacher's own multi-shard cache makes).
	shardCount := 1
	if opt.Shards > 0 {
		shardCount = int(util.NextPow2(uint64(opt.Shards)))
	}
	perShardCap := (opt.MaxEntries + shardCount - 1) / shardCount
	if perShardCap < 1 {
		perShardCap = 1
	}

	shards := make([]*shard[Query, Result], shardCount)
	for i := range shards {
		shards[i] = newShard[Query, Result](perShardCap, opt.Policy, opt.Metrics)
	}

	c := &cacheImpl[Query, Result]{
		opt:    opt,
		handle: nonce.NewHandle(opt.Registry, opt.PropertyName),
		shards: shards,
		hash:   util.Fnv64a[Query],
	}
	return c, nil
}

func (c *cacheImpl[Query, Result]) getShard(q Query) *shard[Query, Result] {
	idx := util.ShardIndex(c.hash(q), len(c.shards))
	return c.shards[idx]
}

// clearAllShards drops every entry in every shard. Callers must hold
// clearMu.
func (c *cacheImpl[Query, Result]) clearAllShards() {
	for _, s := range c.shards {
		s.clear()
	}
}

// Len returns the total number of resident entries across all shards.
func (c *cacheImpl[Query, Result]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.size()
	}
	return total
}

// Clear drops all entries; disabledLocally and lastSeenNonce are left
// untouched.
func (c *cacheImpl[Query, Result]) Clear() {
	c.clearMu.Lock()
	defer c.clearMu.Unlock()
	c.clearAllShards()
	c.opt.Logger.Debugf("cache %s cleared", c.opt.CacheName)
}

// DisableLocal drops all entries and marks this instance disabled in this
// process. Idempotent; once true, stays true for the instance's lifetime.
func (c *cacheImpl[Query, Result]) DisableLocal() {
	c.clearMu.Lock()
	defer c.clearMu.Unlock()
	c.disabledLocally.Store(true)
	c.clearAllShards()
	c.opt.Logger.Debugf("cache %s disabled locally", c.opt.CacheName)
}

// IsDisabledLocal reports whether DisableLocal has been called.
func (c *cacheImpl[Query, Result]) IsDisabledLocal() bool {
	return c.disabledLocally.Load()
}

// InvalidateCache delegates to coordinator.Invalidate for this instance's
// property name.
func (c *cacheImpl[Query, Result]) InvalidateCache() {
	coordinator.Invalidate(c.opt.PropertyName)
}

// DisableSystemWide delegates to coordinator.DisableSystemWide for this
// instance's property name.
func (c *cacheImpl[Query, Result]) DisableSystemWide() {
	coordinator.DisableSystemWide(c.opt.PropertyName)
}

var _ Cache[int, int] = (*cacheImpl[int, int])(nil)
