// Package cache provides a generic, bounded in-memory cache with
// reference-counted (pinned) entries, LRU eviction, lightweight metrics
// hooks, and an eviction callback.
//
// # Design
//
//   - Storage: a map[K]*node for lookups plus an intrusive MRU↔LRU
//     doubly linked list for ordering. All operations are O(1) expected.
//
//   - Pinning: Acquire returns a Handle that pins the entry. A pinned
//     entry is never evicted; the sweep removes entries from the LRU
//     end and stops when it reaches a pinned one. Capacity is therefore
//     a soft limit — a pinned entry at the LRU position lets the cache
//     grow past it until a Release, rather than invalidating live
//     handles.
//
//   - Handles: Release is idempotent and triggers a sweep, so space
//     held open by a pin is reclaimed as soon as the pin drops.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     By default NoopMetrics is used; plug a Prometheus adapter to
//     export metrics.
//
//   - Callbacks: Options.OnEvict(k, v, reason) is called for sweep and
//     Clear evictions (reason is EvictSweep or EvictClear).
//
// # Basic usage
//
//	c := cache.New[string, []byte](cache.Options[string, []byte]{Capacity: 64})
//	c.Set("mesh/rock", data)
//	if h, ok := c.Acquire("mesh/rock"); ok {
//	    defer h.Release()
//	    use(h.Value())
//	}
//
// # Thread-safety
//
// All methods on Cache are safe for concurrent use. Handle.Release may
// be called from any goroutine, including after the entry has been
// replaced or deleted.
package cache
