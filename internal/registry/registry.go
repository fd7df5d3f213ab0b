// Package registry tracks live transactions: each transaction id maps to a
// non-owning reference to the requester waiting on it.
//
// A Registry is not safe for concurrent use. Callers serialize access, and in
// resultnav the navigator guards the registry and the pending store with one
// mutex so both are mutated atomically relative to each other.
package registry

import (
	"time"
	"weak"

	"pkt.systems/resultnav/internal/clock"
)

// Ref resolves a requester without owning it.
type Ref[V any] interface {
	// Resolve returns the referenced value while it is still reachable.
	Resolve() (V, bool)
}

// WeakRef holds a weak pointer to a *T and presents it as V. The view
// function must not capture the pointer it converts, otherwise the referent
// would stay reachable through the registry.
type WeakRef[T any, V any] struct {
	ptr  weak.Pointer[T]
	view func(*T) V
}

// NewWeakRef returns a reference to ptr that does not keep it alive.
func NewWeakRef[T any, V any](ptr *T, view func(*T) V) WeakRef[T, V] {
	return WeakRef[T, V]{ptr: weak.Make(ptr), view: view}
}

// Resolve returns the referent converted through the view function, or false
// once the referent has been reclaimed.
func (w WeakRef[T, V]) Resolve() (V, bool) {
	var zero V
	p := w.ptr.Value()
	if p == nil || w.view == nil {
		return zero, false
	}
	return w.view(p), true
}

type entry[V any] struct {
	ref          Ref[V]
	registeredAt time.Time
}

// Registry maps transaction ids to requester references.
type Registry[V any] struct {
	entries map[string]entry[V]
	clock   clock.Clock
}

// New constructs an empty registry. A nil clock uses the system clock.
func New[V any](clk clock.Clock) *Registry[V] {
	return &Registry[V]{
		entries: make(map[string]entry[V]),
		clock:   clock.Ensure(clk),
	}
}

// Register stores ref under id, replacing any previous entry.
func (r *Registry[V]) Register(id string, ref Ref[V]) {
	if id == "" || ref == nil {
		return
	}
	r.entries[id] = entry[V]{ref: ref, registeredAt: r.clock.Now()}
}

// Resolve returns the live requester registered under id. A dead reference is
// purged and reported as absent.
func (r *Registry[V]) Resolve(id string) (V, bool) {
	var zero V
	e, ok := r.entries[id]
	if !ok {
		return zero, false
	}
	v, alive := e.ref.Resolve()
	if !alive {
		delete(r.entries, id)
		return zero, false
	}
	return v, true
}

// Take removes the entry for id and returns its requester when still alive,
// along with the time it was registered. found reports whether an entry
// existed at all, live or not.
func (r *Registry[V]) Take(id string) (v V, alive bool, registeredAt time.Time, found bool) {
	e, ok := r.entries[id]
	if !ok {
		return v, false, time.Time{}, false
	}
	delete(r.entries, id)
	v, alive = e.ref.Resolve()
	return v, alive, e.registeredAt, true
}

// Remove deletes the entry for id. It is a no-op when id is unknown.
func (r *Registry[V]) Remove(id string) {
	delete(r.entries, id)
}

// Contains reports whether an entry exists for id without resolving it.
func (r *Registry[V]) Contains(id string) bool {
	_, ok := r.entries[id]
	return ok
}

// Sweep purges every entry whose referent has been reclaimed and returns the
// number removed.
func (r *Registry[V]) Sweep() int {
	removed := 0
	for id, e := range r.entries {
		if _, alive := e.ref.Resolve(); !alive {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, including ones not yet swept.
func (r *Registry[V]) Len() int {
	return len(r.entries)
}
