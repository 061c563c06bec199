// Package coordinator implements the InvalidationCoordinator (C4): a
// process-global registry of cork counts per nonce key, serializing
// invalidate, cork, uncork, and disableSystemWide.
package coordinator

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/IvanBrykalov/noncecache/nonce"
	"github.com/IvanBrykalov/noncecache/registry"
)

// corks and corkLock are process-wide: multiple cache instances across a
// process share nonce keys, so the cork table must too. corks is
// allocated and the nonce generator seeded when the package is
// initialised, and corkLock is usable at its zero value, so no explicit
// init step is needed beyond Bind.
var (
	corkLock sync.Mutex
	corks    = make(map[string]int)

	regMu sync.RWMutex
	reg   registry.Registry

	nextNonce = newGenerator()
)

// Bind supplies the registry.Registry the coordinator operates against.
// Call it once during process startup, before any Invalidate/Cork/Uncork/
// DisableSystemWide call. The registry is a process-external collaborator
// (spec's C1); the coordinator never constructs one itself so that
// callers remain free to choose the backend.
func Bind(r registry.Registry) {
	regMu.Lock()
	reg = r
	regMu.Unlock()
}

func registryOrPanic() registry.Registry {
	regMu.RLock()
	r := reg
	regMu.RUnlock()
	if r == nil {
		panic("coordinator: Bind must be called with a registry.Registry before use")
	}
	return r
}

// Invalidate publishes a fresh live nonce under name, causing every cache
// bound to name (in every process) to discard its entries on its next
// query. If name is currently corked, this is a no-op: the registry is
// left untouched. If name is disabled system-wide, this is also a no-op.
func Invalidate(name string) {
	corkLock.Lock()
	defer corkLock.Unlock()
	invalidateLocked(name)
}

// invalidateLocked assumes corkLock is held.
func invalidateLocked(name string) {
	if corks[name] > 0 {
		return
	}
	r := registryOrPanic()
	current := r.GetLong(name, nonce.Unset)
	if current == nonce.Disabled {
		return
	}
	r.Set(name, nonce.Encode(nextNonce.next()))
}

// Cork takes a reference-counted suppression of invalidations for name.
// On the 0→1 transition, if the registry currently holds a live value, it
// is forced to Unset so every cache bound to name bypasses while corked.
// Cork/Uncork must be called in matching pairs.
func Cork(name string) {
	corkLock.Lock()
	defer corkLock.Unlock()

	count := corks[name]
	if count == 0 {
		r := registryOrPanic()
		current := r.GetLong(name, nonce.Unset)
		if nonce.IsLive(current) {
			r.Set(name, nonce.Encode(nonce.Unset))
		}
	}
	corks[name] = count + 1
}

// Uncork releases one cork taken by Cork. Removing the last cork on name
// invalidates it by side effect, publishing a fresh live nonce so caches
// re-enable into a clean session (unless name has been disabled system
// wide in the meantime, in which case invalidateLocked leaves it alone).
//
// Calling Uncork without a matching outstanding Cork is a programming
// error and panics.
func Uncork(name string) {
	corkLock.Lock()
	defer corkLock.Unlock()

	count := corks[name]
	if count < 1 {
		panic(fmt.Sprintf("coordinator: cork underflow for %q", name))
	}
	if count == 1 {
		delete(corks, name)
		invalidateLocked(name)
		return
	}
	corks[name] = count - 1
}

// DisableSystemWide unconditionally writes Disabled to the registry under
// name. This is an administrative kill switch: it is intentionally NOT
// gated by the cork lock, so it must succeed even if corking machinery is
// in an unexpected state.
func DisableSystemWide(name string) {
	registryOrPanic().Set(name, nonce.Encode(nonce.Disabled))
}

// generator draws process-unique (not cross-process-monotonic) nonces,
// seeded once from a random 64-bit value and incremented by 1 on each
// draw. Values equal to either sentinel are skipped.
type generator struct {
	mu  sync.Mutex
	val int64
}

func newGenerator() *generator {
	return &generator{val: rand.Int64()}
}

func (g *generator) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		v := g.val
		g.val++
		if nonce.IsLive(v) {
			return v
		}
	}
}
