package pool

import "sync/atomic"

// Handle is the caller-held token for one checked-out resource. It grants
// exclusive ownership from Acquire until the matching Release or Discard
// consumes it. A handle must not be copied; the pool tracks it by the entry
// it wraps and a generation tag, so a stale handle is rejected even after
// the underlying resource has recirculated to another borrower.
type Handle[T any] struct {
	pool     *Pool[T]
	entry    *entry[T]
	gen      uint64
	released atomic.Bool
}

// Resource returns the borrowed resource. Accessing it after Release or
// Discard is a contract violation: it panics in strict mode and logs and
// returns the zero value otherwise.
func (h *Handle[T]) Resource() T {
	if h == nil || h.entry == nil {
		var zero T
		return zero
	}
	if h.released.Load() {
		h.pool.violation("resource access after release")
		var zero T
		return zero
	}
	return h.entry.res
}

// Valid reports whether the handle still owns its resource.
func (h *Handle[T]) Valid() bool {
	return h != nil && h.entry != nil && !h.released.Load()
}
