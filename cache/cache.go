package cache

import (
	"sync"
	"sync/atomic"
)

// cache is a bounded KV store with an intrusive MRU↔LRU list and
// pin-based eviction protection. A single mutex guards the map and the
// list; all operations are O(1). The sweep evicts from the tail and
// stops early at a pinned node, so capacity is a soft limit.
type cache[K comparable, V any] struct {
	mu     sync.Mutex
	m      map[K]*node[K, V]
	head   *node[K, V] // MRU
	tail   *node[K, V] // LRU
	len    int
	pinned int // number of resident nodes with pins > 0
	cap    int

	closed atomic.Bool

	opt Options[K, V]
}

// New constructs a cache with the provided Options.
// Defaults:
//   - nil Metrics -> NoopMetrics
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.Capacity <= 0 {
		panic("Capacity must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	// return pointer-to-impl as the interface (avoids unexported-return lint)
	return &cache[K, V]{
		m:   make(map[K]*node[K, V], opt.Capacity),
		cap: opt.Capacity,
		opt: opt,
	}
}

// ---- Cache[K,V] implementation ----

// Acquire returns a pinned handle for k, promoting the entry to MRU.
// The returned handle must be released exactly once.
func (c *cache[K, V]) Acquire(k K) (*Handle[V], bool) {
	if c.closed.Load() {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.m[k]
	if !ok {
		c.opt.Metrics.Miss()
		return nil, false
	}
	c.pin(n)
	c.moveToFront(n)
	c.opt.Metrics.Hit()
	c.opt.Metrics.Size(c.len, c.pinned)

	h := &Handle[V]{val: n.val}
	h.release = func() { c.release(n) }
	return h, true
}

// Set inserts or updates k→v as MRU and runs the eviction sweep.
// An update preserves the entry's pin count.
func (c *cache[K, V]) Set(k K, v V) {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.m[k]; ok {
		// In-place update: outstanding handles keep the old value.
		n.val = v
		c.moveToFront(n)
		c.sweepLocked()
		return
	}

	n := &node[K, V]{key: k, val: v, resident: true}
	c.m[k] = n
	c.insertFront(n)
	c.sweepLocked()
}

// Delete removes k if present and returns true on success.
func (c *cache[K, V]) Delete(k K) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.m[k]
	if !ok {
		return false
	}
	c.removeNode(n)
	delete(c.m, k)
	c.opt.Metrics.Size(c.len, c.pinned)
	return true
}

// Clear removes every entry, pinned or not. Outstanding handles keep
// their values; their Release calls become no-ops.
func (c *cache[K, V]) Clear() {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for n := c.head; n != nil; n = n.next {
		n.resident = false
		c.opt.Metrics.Evict(EvictClear)
		if cb := c.opt.OnEvict; cb != nil {
			cb(n.key, n.val, EvictClear)
		}
	}
	c.m = make(map[K]*node[K, V], c.cap)
	c.head, c.tail = nil, nil
	c.len, c.pinned = 0, 0
	c.opt.Metrics.Size(0, 0)
}

// Entries returns resident keys in MRU→LRU order.
func (c *cache[K, V]) Entries() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.len)
	for n := c.head; n != nil; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

// Len returns the number of resident entries.
func (c *cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.len
}

// Close marks the cache as closed. Future operations are ignored.
func (c *cache[K, V]) Close() error {
	c.closed.Store(true)
	return nil
}

// -------------------- internals (mu held) --------------------

// pin increments the node's pin count and the pinned-nodes counter.
func (c *cache[K, V]) pin(n *node[K, V]) {
	if n.pins == 0 {
		c.pinned++
	}
	n.pins++
}

// release is the Handle.Release backend: it drops one pin and, if the
// node is still resident, gives the sweep a chance to reclaim space
// that pinning was holding open.
func (c *cache[K, V]) release(n *node[K, V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n.pins == 0 {
		return
	}
	n.pins--
	if n.pins == 0 && n.resident {
		c.pinned--
	}
	if n.resident {
		c.sweepLocked()
	}
}

// insertFront inserts n at MRU in O(1).
func (c *cache[K, V]) insertFront(n *node[K, V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
	c.len++
}

// moveToFront promotes n to MRU in O(1).
func (c *cache[K, V]) moveToFront(n *node[K, V]) {
	if n == c.head {
		return
	}
	// detach
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if c.tail == n {
		c.tail = n.prev
	}
	// insert at head
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

// removeNode detaches n from the list and updates counters in O(1).
func (c *cache[K, V]) removeNode(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if c.head == n {
		c.head = n.next
	}
	if c.tail == n {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
	n.resident = false
	c.len--
	if n.pins > 0 {
		c.pinned--
	}
}

// sweepLocked evicts from the LRU end until the count is at or under
// capacity. A pinned entry at the LRU position ends the sweep: entries
// newer than it are left alone, so capacity is a soft limit and the
// cache may stay over it until the pin is released (a release triggers
// another sweep).
func (c *cache[K, V]) sweepLocked() {
	for c.len > c.cap {
		n := c.tail
		if n == nil || n.pins > 0 {
			break
		}
		c.removeNode(n)
		delete(c.m, n.key)
		c.opt.Metrics.Evict(EvictSweep)
		if cb := c.opt.OnEvict; cb != nil {
			// Called under the lock; pass copies of key/value if this
			// ever moves outside it.
			cb(n.key, n.val, EvictSweep)
		}
	}
	c.opt.Metrics.Size(c.len, c.pinned)
}
