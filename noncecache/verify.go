package noncecache

import (
	"context"
	"fmt"
)

// verify implements Options.Verify: a second, independent Recompute call
// used only to detect a stale return, never to decide what Query
// returns. A nil (ok=false) second fetch tolerates anything, since
// there's nothing to compare against; otherwise the proposed result must
// equal the fresh one, and must itself be present (an Evict whose
// independent recompute now finds a value is exactly the kind of drift
// VERIFY exists to catch).
func (c *cacheImpl[Query, Result]) verify(ctx context.Context, query Query, n int64, proposed Result, proposedOK bool) (Result, bool) {
	if !c.opt.Verify {
		return proposed, proposedOK
	}

	compare, compareOK, err := c.opt.Recompute(ctx, query)
	if err != nil {
		// Can't verify against a failing second fetch; don't let a
		// verification-only call mask the primary result.
		return proposed, proposedOK
	}

	current := c.handle.Read(ctx)
	nonceChanged := current != n
	if nonceChanged {
		// The nonce moved on while we were verifying; the comparison
		// would be against a world that no longer exists.
		return proposed, proposedOK
	}

	matches := true
	if compareOK {
		matches = proposedOK && c.opt.DebugCompare(proposed, compare)
	}
	if !matches {
		c.opt.Metrics.VerifyMismatch()
		c.opt.Logger.Debugf("cache %s returned stale result for %s", c.opt.CacheName, c.opt.QueryToString(query))
		panic(fmt.Sprintf("noncecache: %s returned an out-of-date result for query %s", c.opt.CacheName, c.opt.QueryToString(query)))
	}
	return proposed, proposedOK
}
