package nonce

import (
	"context"
	"sync/atomic"

	"github.com/IvanBrykalov/noncecache/internal/singleflight"
	"github.com/IvanBrykalov/noncecache/registry"
)

// Handle is a per-key lazy accessor that caches the registry handle after
// first resolution (C2). On first call it resolves the underlying
// registry.Handle for name; if the key does not yet exist it returns Unset
// and remains unresolved, so a later appearance of the key is picked up.
// Once resolved, Read returns the current scalar value, or Unset if the
// key cannot be decoded.
//
// The resolved handle is published through an atomic.Pointer, safe to
// read without any external lock: readers must observe the nonce without
// taking the cache's instance lock or the coordinator's cork lock.
type Handle struct {
	registry registry.Registry
	name     string

	resolved atomic.Pointer[registry.Handle]

	// resolve coalesces concurrent first-resolution attempts: callers
	// that arrive while a registry.Find for this key is in flight wait
	// for and share its result instead of issuing their own. A caller
	// that arrives after that call has finished starts a new one.
	resolve singleflight.Group[string, registry.Handle]
}

// NewHandle constructs an unresolved handle bound to name.
func NewHandle(reg registry.Registry, name string) *Handle {
	return &Handle{registry: reg, name: name}
}

// Read returns the current nonce for this handle's key, or Unset if the
// key is absent or cannot yet be resolved.
func (h *Handle) Read(ctx context.Context) int64 {
	rh := h.resolved.Load()
	if rh == nil {
		found, err := h.resolve.Do(ctx, h.name, func() (registry.Handle, error) {
			if found, ok := h.registry.Find(h.name); ok {
				return found, nil
			}
			return nil, errUnresolved
		})
		if err != nil || found == nil {
			return Unset
		}
		h.resolved.Store(&found)
		rh = &found
	}
	return (*rh).GetLong(Unset)
}

type unresolvedError struct{}

func (unresolvedError) Error() string { return "nonce: key not yet present in registry" }

var errUnresolved = unresolvedError{}
