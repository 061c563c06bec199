// Package memregistry is an in-process registry.Registry implementation.
// It is a reference collaborator for tests, examples, and single-process
// deployments: production deployments needing cross-process visibility
// would back registry.Registry with something actually external (a shared
// file, etcd, an OS-level property store); that plumbing is out of scope
// for this collaborator boundary.
package memregistry

import (
	"strconv"
	"sync"

	"github.com/IvanBrykalov/noncecache/registry"
)

// Registry is a goroutine-safe, in-process map[string]int64.
type Registry struct {
	mu sync.RWMutex
	m  map[string]int64
}

// New constructs an empty in-process registry.
func New() *Registry {
	return &Registry{m: make(map[string]int64)}
}

// GetLong returns the current value for name, or def if absent.
func (r *Registry) GetLong(name string, def int64) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.m[name]; ok {
		return v
	}
	return def
}

// Set overwrites the value for name. value is parsed as a base-10 int64;
// an unparsable value is treated as absence of the key (this mirrors a
// real property-store client tolerating a corrupt/foreign value rather
// than panicking on it).
func (r *Registry) Set(name string, value string) {
	v, err := strconv.ParseInt(value, 10, 64)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		delete(r.m, name)
		return
	}
	r.m[name] = v
}

// Find resolves a handle for name. The second return is false if the key
// has never been set.
func (r *Registry) Find(name string) (registry.Handle, bool) {
	r.mu.RLock()
	_, ok := r.m[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &handle{r: r, name: name}, true
}

// handle is a resolved reference into a Registry. It re-reads the map on
// every GetLong call rather than caching a value, because memregistry's
// map lookup is already O(1) and cheap; a real out-of-process backend
// would typically cache more aggressively inside its own Handle.
type handle struct {
	r    *Registry
	name string
}

func (h *handle) GetLong(def int64) int64 {
	return h.r.GetLong(h.name, def)
}

var _ registry.Registry = (*Registry)(nil)
