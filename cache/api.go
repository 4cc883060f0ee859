package cache

// Cache is a bounded, in-memory key/value store with reference-counted
// eviction protection. All methods are safe for concurrent use by
// multiple goroutines.
//
// Capacity is a soft limit: entries whose pin count is positive are
// never evicted, so the cache may temporarily hold more than Capacity
// entries until a matching Release frees one up.
type Cache[K comparable, V any] interface {
	// Acquire returns a pinned handle for k and a presence flag.
	// On hit, the entry is promoted to most-recently-used and its pin
	// count is incremented. Each successful Acquire must be matched by
	// exactly one call to Handle.Release.
	Acquire(k K) (*Handle[V], bool)

	// Set inserts or updates k→v, promotes the entry to
	// most-recently-used, and runs an eviction sweep. Updating an
	// existing entry preserves its pin count.
	Set(k K, v V)

	// Delete removes k if present and returns true on success.
	// Outstanding handles for k keep their value; their Release
	// becomes a no-op with respect to the cache.
	Delete(k K) bool

	// Clear removes all entries, pinned or not.
	Clear()

	// Entries returns a snapshot of resident keys in MRU→LRU order.
	Entries() []K

	// Len returns the number of resident entries.
	Len() int

	// Close marks the cache as closed. Future operations are ignored;
	// Release on outstanding handles remains safe.
	Close() error
}
