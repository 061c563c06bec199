package noncecache

import (
	"context"

	"github.com/IvanBrykalov/noncecache/policy"
	"github.com/IvanBrykalov/noncecache/registry"
)

// RefreshAction tells Query what to do with the result of a Refresh call.
// Go values have no reference identity to lean on for an implicit
// "did this actually change" check, so the protocol's three outcomes —
// keep unchanged, replace, or evict — are named explicitly instead.
type RefreshAction int

const (
	// Unchanged: nothing new; return the input result as-is without a
	// nonce re-check. This is the cheap shortcut for the common case
	// where a refresh determines nothing actually changed.
	Unchanged RefreshAction = iota
	// Replace: the returned result replaces the cached one, subject to a
	// post-refresh nonce re-check.
	Replace
	// Evict: the entry should be removed; Query returns ok=false.
	Evict
)

// Recomputer is the required extension point: the authoritative fetch,
// typically a remote call. Called without the instance lock held; may
// block. ok=false (with err=nil) means "no result, don't cache it" — this
// cache never negatively caches. A non-nil err propagates to the caller
// unchanged and leaves cache state untouched.
type Recomputer[Query comparable, Result any] func(ctx context.Context, query Query) (result Result, ok bool, err error)

// Refresher is the optional extension point letting owners incrementally
// update a cached result without discarding it outright. Called without
// the instance lock held; may block. See RefreshAction for the three
// outcomes.
type Refresher[Query comparable, Result any] func(ctx context.Context, old Result, query Query) (refreshed Result, action RefreshAction)

// DebugComparer determines whether two results are equivalent, used only
// when Options.Verify is enabled.
type DebugComparer[Result any] func(cached, fetched Result) bool

// Metrics exposes cache-level observability hooks. A NoopMetrics
// implementation is provided and used by default; metrics/prom.Adapter
// implements this against Prometheus.
type Metrics interface {
	Hit()
	Miss()
	Bypass()
	Evict()
	VerifyMismatch()
	Size(entries int)
}

// NoopMetrics is the default Metrics: safe for concurrent use, does
// nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()            {}
func (NoopMetrics) Miss()           {}
func (NoopMetrics) Bypass()         {}
func (NoopMetrics) Evict()          {}
func (NoopMetrics) VerifyMismatch() {}
func (NoopMetrics) Size(int)        {}

var _ Metrics = NoopMetrics{}

// Logger is the cache's debug-logging hook. Every call site costs
// nothing when Logger is the default NoopLogger, since NoopLogger's
// method is an empty inline function.
type Logger interface {
	Debugf(format string, args ...any)
}

// NoopLogger discards every message.
type NoopLogger struct{}

func (NoopLogger) Debugf(string, ...any) {}

var _ Logger = NoopLogger{}

// Options configures a Cache. Zero values are safe except where noted;
// New applies these defaults:
//   - nil Metrics       => NoopMetrics
//   - nil Logger        => NoopLogger
//   - nil Policy        => policy/lru
//   - Shards <= 0       => a single shard, giving an exact MaxEntries
//     bound and exact LRU order (see internal/util.ReasonableShardCount
//     for picking a concurrency-friendly value when opting into sharding)
//   - nil DebugCompare  => github.com/google/go-cmp-based structural
//     equality, tolerant of a nil fetch (see verify.go)
type Options[Query comparable, Result any] struct {
	// MaxEntries is the entry count limit across all internal shards.
	MaxEntries int

	// PropertyName is the nonce key this cache is bound to. Immutable
	// for the cache's lifetime.
	PropertyName string

	// Registry is the collaborator nonces are read from. Required.
	Registry registry.Registry

	// Recompute is the required authoritative fetch.
	Recompute Recomputer[Query, Result]

	// Refresh is optional; nil defaults to "always Unchanged" (return
	// the input result as-is).
	Refresh Refresher[Query, Result]

	// Verify enables the VERIFY consistency-checking mode: every
	// non-bypass return is re-checked against a second Recompute call.
	Verify bool

	// DebugCompare is the equivalence predicate VERIFY uses; see the
	// package default above.
	DebugCompare DebugComparer[Result]

	// QueryToString and CacheName are debug-log-only hooks; they never
	// affect cache semantics.
	QueryToString func(Query) string
	CacheName     string

	// Shards controls internal shard count for the bounded LRU; <= 0
	// means a single shard (exact MaxEntries bound, exact LRU order).
	// Values > 1 trade that exactness for concurrency: the MaxEntries
	// budget is ceil-split across shards, so the global resident count
	// is only approximately bounded and recency is only approximate
	// across shard boundaries.
	Shards int

	// Policy is the pluggable eviction policy; nil defaults to LRU.
	Policy policy.Policy[Query, Result]

	Metrics Metrics
	Logger  Logger
}
