// Package nonce holds the nonce sentinels shared by the cache and the
// invalidation coordinator, plus the per-key lazy NonceHandle (C2).
package nonce

import "strconv"

const (
	// Unset means the key is absent or freshly corked: caches bypass,
	// nothing is cached.
	Unset int64 = 0

	// Disabled means the cache is administratively turned off
	// system-wide: bypassed, and never re-enabled by invalidation.
	Disabled int64 = -1
)

// IsLive reports whether v is neither sentinel, i.e. a value a cache may
// actually key its entries on.
func IsLive(v int64) bool { return v != Unset && v != Disabled }

// Encode renders a nonce as the base-10 decimal string a registry.Registry
// stores values as.
func Encode(v int64) string { return strconv.FormatInt(v, 10) }
