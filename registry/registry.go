// Package registry deduplicates concurrent asset builds: for any cache
// key there is at most one build in flight, every concurrent caller
// attaches to it, and each successful caller walks away with its own
// pinned cache handle.
package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/IvanBrykalov/assetcache/cache"
)

// ErrCacheClosed is returned when a built value cannot be pinned
// because the underlying cache has been closed.
var ErrCacheClosed = errors.New("registry: cache closed")

// Builder produces the value for one key, typically by submitting work
// to a download pool and decoding the bytes. It is invoked at most
// once per in-flight build.
type Builder[V any] func(ctx context.Context) (V, error)

// Registry coalesces concurrent EnsureBuilt calls per key and stores
// successful results in the cache.
//
// Concurrency notes:
//   - The first caller for a key becomes the leader and runs the
//     builder. Followers wait on b.done. Publishing (val, err) happens
//     before close(b.done), so reads after <-done observe the final
//     values.
//   - The in-flight entry is removed before waiters are woken, success
//     or failure, so a failed build is never memoized: the next call
//     starts a fresh attempt.
//   - Cancelling ctx in a follower detaches only that follower; the
//     leader's build keeps running. Leaders see ctx through the
//     builder and handle it there.
type Registry[K comparable, V any] struct {
	c cache.Cache[K, V]

	mu       sync.Mutex
	inflight map[K]*build[V]
}

type build[V any] struct {
	done chan struct{} // closed when val/err are published
	val  V
	err  error
}

// New constructs a Registry on top of c. The registry does not own the
// cache; closing it is the caller's business.
func New[K comparable, V any](c cache.Cache[K, V]) *Registry[K, V] {
	return &Registry[K, V]{
		c:        c,
		inflight: make(map[K]*build[V]),
	}
}

// Acquire returns a pinned handle for key if it is already cached.
func (r *Registry[K, V]) Acquire(key K) (*cache.Handle[V], bool) {
	return r.c.Acquire(key)
}

// Set stores a pre-built value, bypassing the build path.
func (r *Registry[K, V]) Set(key K, v V) {
	r.c.Set(key, v)
}

// EnsureBuilt returns a pinned handle for key, building the value if
// it is neither cached nor already being built. All concurrent callers
// for the same key observe the same single build attempt; each
// successful caller receives its own handle and owns its own Release.
func (r *Registry[K, V]) EnsureBuilt(ctx context.Context, key K, builder Builder[V]) (*cache.Handle[V], error) {
	// Fast path: already resident.
	if h, ok := r.c.Acquire(key); ok {
		return h, nil
	}

	r.mu.Lock()
	if b, ok := r.inflight[key]; ok {
		// Attach to the running build (respecting ctx).
		done := b.done
		r.mu.Unlock()

		select {
		case <-done:
			if b.err != nil {
				return nil, b.err
			}
			return r.pin(key, b.val)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// We are the leader for this key.
	b := &build[V]{done: make(chan struct{})}
	r.inflight[key] = b
	r.mu.Unlock()

	// Double-check after taking leadership: another leader may have
	// finished between our miss and the lock.
	if h, ok := r.c.Acquire(key); ok {
		r.settle(key, b, h.Value(), nil)
		return h, nil
	}

	v, err := builder(ctx)
	if err == nil {
		r.c.Set(key, v)
	}
	r.settle(key, b, v, err)

	if err != nil {
		return nil, err
	}
	return r.pin(key, v)
}

// settle publishes the outcome and wakes followers. The in-flight
// entry is removed first, so by the time any waiter runs, a new
// EnsureBuilt for the key starts a fresh build.
func (r *Registry[K, V]) settle(key K, b *build[V], v V, err error) {
	b.val, b.err = v, err

	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()

	close(b.done)
}

// pin acquires a fresh handle for a just-built value. The entry can be
// swept in the window between the leader's Set and a waiter's Acquire
// (it is unpinned and may be LRU under pressure), in which case the
// built value is re-inserted and pinned on the retry. Repeated misses
// mean the cache was closed.
func (r *Registry[K, V]) pin(key K, v V) (*cache.Handle[V], error) {
	for i := 0; i < 8; i++ {
		if h, ok := r.c.Acquire(key); ok {
			return h, nil
		}
		r.c.Set(key, v)
	}
	return nil, ErrCacheClosed
}
