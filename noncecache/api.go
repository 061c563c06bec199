package noncecache

import "context"

// Cache is a property-invalidated LRU cache: a client-side memoization
// primitive whose entries are discarded wholesale whenever the nonce
// observed under PropertyName changes. All methods are safe for
// concurrent use by multiple goroutines.
type Cache[Query comparable, Result any] interface {
	// Query returns a value for query, possibly by invoking Recompute
	// (and, on a hit, Refresh). ok is false exactly when Recompute (or
	// Refresh) produced no result; err is non-nil exactly when the primary
	// Recompute call returned an error, which is propagated unchanged and
	// leaves cache state untouched. An error from the extra Recompute call
	// made in Verify mode is not returned.
	Query(ctx context.Context, query Query) (result Result, ok bool, err error)

	// Len returns the total number of resident entries across all shards.
	Len() int

	// Clear drops all entries. DisabledLocal and the last-seen nonce are
	// preserved.
	Clear()

	// DisableLocal drops all entries and marks the instance disabled in
	// this process. Idempotent.
	DisableLocal()

	// IsDisabledLocal reports whether DisableLocal has been called on
	// this instance.
	IsDisabledLocal() bool

	// InvalidateCache delegates to coordinator.Invalidate(PropertyName).
	// Convenience for the common case of one cache per property; when
	// multiple caches share a property, call coordinator.Invalidate
	// directly instead of picking one cache instance to speak for all of
	// them.
	InvalidateCache()

	// DisableSystemWide delegates to
	// coordinator.DisableSystemWide(PropertyName).
	DisableSystemWide()
}
