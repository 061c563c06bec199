// Package registry defines the collaborator contract a PerInstanceCache and
// InvalidationCoordinator use to read and write nonces. The registry itself
// is process-external in the general case (it must be readable by every
// process that holds a cache bound to the same key); this package only
// describes the shape a concrete backend must have. See memregistry for an
// in-process reference implementation.
package registry

// Registry is a process-external map from string key to a 64-bit nonce.
// Implementations are typically single-writer in practice: many readers,
// one producer of truth per key.
type Registry interface {
	// GetLong returns the current value stored under name, or def if the
	// key is absent.
	GetLong(name string, def int64) int64

	// Set overwrites the value stored under name. value is the decimal
	// string encoding of a nonce (see nonce.Encode); callers never need
	// to hand-format it themselves.
	Set(name string, value string)

	// Find resolves a handle for name once. The second return is false if
	// the key does not yet exist; callers are expected to retry Find
	// later (a handle does not negatively cache non-existence).
	Find(name string) (Handle, bool)
}

// Handle is a resolved reference to one registry key. Repeated GetLong
// calls read the current value without re-hashing or re-locating the
// key.
type Handle interface {
	GetLong(def int64) int64
}
