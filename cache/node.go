package cache

// node is an intrusive doubly linked list element owned by the cache.
// It stores the key/value alongside list links and the pin count that
// protects the entry from eviction.
type node[K comparable, V any] struct {
	key K
	val V

	// Intrusive list links: head is MRU, tail is LRU.
	prev *node[K, V]
	next *node[K, V]

	// Number of outstanding handles. The eviction sweep skips any node
	// with pins > 0.
	pins int

	// resident is false once the node has been removed from the map
	// and list (evicted, deleted, or cleared). A Release arriving after
	// that only decrements pins and must not touch list state.
	resident bool
}
