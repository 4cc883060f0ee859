package cache

import "sync/atomic"

// Handle is a pinned reference to a cached value. While at least one
// handle for an entry is outstanding, the entry is exempt from
// eviction. The value is captured at Acquire time, so it stays valid
// even if the entry is later replaced or deleted.
type Handle[V any] struct {
	val      V
	release  func()
	released atomic.Bool
}

// Value returns the value this handle was acquired with.
func (h *Handle[V]) Value() V { return h.val }

// Release drops the pin. It is idempotent: releasing an already
// released handle is a no-op.
func (h *Handle[V]) Release() {
	if h.released.CompareAndSwap(false, true) {
		h.release()
	}
}
