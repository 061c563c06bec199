package noncecache

import (
	"context"

	"github.com/IvanBrykalov/noncecache/nonce"
)

// Query implements the nonce consistency protocol: compute the nonce
// once, then loop over lookup/refresh/recompute until a stable answer is
// reached.
//
// Recompute and Refresh are always called without clearMu or any shard
// lock held, so neither ever blocks a concurrent Query's bypass check,
// lookup, or commit.
func (c *cacheImpl[Query, Result]) Query(ctx context.Context, query Query) (Result, bool, error) {
	n := c.currentNonceForNewQuery(ctx)

	for {
		if n == nonce.Disabled || n == nonce.Unset {
			c.opt.Metrics.Bypass()
			result, ok, err := c.opt.Recompute(ctx, query)
			if err != nil {
				var zero Result
				return zero, false, err
			}
			return result, ok, nil
		}

		hitVal, hit := c.lookupOrReset(n, query)

		if !hit {
			c.opt.Metrics.Miss()
			fetched, ok, err := c.opt.Recompute(ctx, query)
			if err != nil {
				var zero Result
				return zero, false, err
			}
			c.commit(n, query, fetched, ok)
			proposed, proposedOK := c.verify(ctx, query, n, fetched, ok)
			return proposed, proposedOK, nil
		}

		c.opt.Metrics.Hit()
		refreshed, action := c.opt.Refresh(ctx, hitVal, query)
		if action == Unchanged {
			proposed, proposedOK := c.verify(ctx, query, n, refreshed, true)
			return proposed, proposedOK, nil
		}

		after := c.currentNonceIgnoringDisabled(ctx)
		if after != n {
			n = after
			continue
		}

		ok := action == Replace
		c.commit(n, query, refreshed, ok)
		proposed, proposedOK := c.verify(ctx, query, n, refreshed, ok)
		return proposed, proposedOK, nil
	}
}

// currentNonceForNewQuery is evaluated once per Query call, before the
// retry loop starts: a disabled instance always bypasses, regardless of
// what the registry currently holds.
func (c *cacheImpl[Query, Result]) currentNonceForNewQuery(ctx context.Context) int64 {
	if c.disabledLocally.Load() {
		return nonce.Disabled
	}
	return c.handle.Read(ctx)
}

// currentNonceIgnoringDisabled re-reads the registry after a refresh. It
// does not re-apply the instance-disabled override; only the initial
// per-call nonce computation does that.
func (c *cacheImpl[Query, Result]) currentNonceIgnoringDisabled(ctx context.Context) int64 {
	return c.handle.Read(ctx)
}

// lookupOrReset performs a single atomic step: either look up query
// against the entries that belong to nonce n, or discover n is a new
// epoch and reset every shard to it. The fast path (n already current)
// only takes one shard's lock; the slow path (an epoch transition) takes
// clearMu.
func (c *cacheImpl[Query, Result]) lookupOrReset(n int64, query Query) (Result, bool) {
	seen := c.lastSeenNonce.Load()
	if n == seen {
		s := c.getShard(query)
		val, ok := s.get(query)
		if ok {
			s.promote(query)
		}
		return val, ok
	}

	c.clearMu.Lock()
	if c.lastSeenNonce.Load() != n {
		c.clearAllShards()
		c.lastSeenNonce.Store(n)
	}
	c.clearMu.Unlock()

	var zero Result
	return zero, false
}

// commit installs fetched under query iff n is still the current epoch,
// i.e. no invalidation raced the fetch. ok=false evicts instead (used
// for both a negative Recompute result and a Refresh Evict action).
func (c *cacheImpl[Query, Result]) commit(n int64, query Query, fetched Result, ok bool) {
	c.clearMu.Lock()
	defer c.clearMu.Unlock()
	if c.lastSeenNonce.Load() != n {
		return
	}
	s := c.getShard(query)
	if ok {
		s.put(query, fetched)
	} else {
		s.delete(query)
	}
}
