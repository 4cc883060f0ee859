package cache

// EvictReason explains why an entry left the cache.
type EvictReason int

const (
	// EvictSweep — removed by the capacity sweep (least-recently-used
	// unpinned entry).
	EvictSweep EvictReason = iota
	// EvictClear — removed by Clear, regardless of pin state.
	EvictClear
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	// Size reports the resident entry count and how many of those
	// entries are currently pinned.
	Size(entries, pinned int)
}

// Options configures the cache behavior. Zero values are safe except
// Capacity, which must be positive; defaults are applied in New():
//   - nil Metrics => NoopMetrics
type Options[K comparable, V any] struct {
	// Capacity is the soft entry count limit. The sweep evicts from the
	// LRU end until the count is at or under Capacity, stopping at the
	// first pinned entry; the cache may exceed Capacity until a
	// Release.
	Capacity int

	// OnEvict is called for every sweep eviction and for every entry
	// dropped by Clear, under the cache lock; keep callbacks
	// lightweight. Explicit Delete does not fire it.
	OnEvict func(k K, v V, reason EvictReason)

	// Metrics receives Hit/Miss/Evict/Size signals.
	Metrics Metrics
}
