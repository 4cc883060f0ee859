package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/assetcache/cache"
)

func newRegistry(t *testing.T, capacity int) *Registry[string, string] {
	t.Helper()
	c := cache.New[string, string](cache.Options[string, string]{Capacity: capacity})
	t.Cleanup(func() { _ = c.Close() })
	return New[string, string](c)
}

// Two back-to-back EnsureBuilt calls for the same key, issued before
// the builder resolves, share one build.
func TestEnsureBuilt_Dedup(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, 8)

	var calls int64
	gate := make(chan struct{})
	builder := func(context.Context) (string, error) {
		atomic.AddInt64(&calls, 1)
		<-gate
		return "built", nil
	}

	var g errgroup.Group
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			<-start
			h, err := r.EnsureBuilt(context.Background(), "foo", builder)
			if err != nil {
				return err
			}
			defer h.Release()
			if h.Value() != "built" {
				return errors.New("wrong value")
			}
			return nil
		})
	}
	close(start)
	time.Sleep(20 * time.Millisecond) // let both callers attach
	close(gate)

	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, atomic.LoadInt64(&calls), "builder must run exactly once")
}

// N concurrent callers all get equivalent outcomes from one build, and
// every caller owns an independent pin.
func TestEnsureBuilt_ManyWaiters(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, 8)

	var calls int64
	builder := func(context.Context) (string, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return "v", nil
	}

	const n = 32
	handles := make([]*cache.Handle[string], n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			h, err := r.EnsureBuilt(context.Background(), "k", builder)
			if err != nil {
				return err
			}
			handles[i] = h
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, atomic.LoadInt64(&calls))

	for _, h := range handles {
		require.NotNil(t, h)
		require.Equal(t, "v", h.Value())
		h.Release()
	}
}

// A failed build is not memoized: the next call starts a new attempt.
func TestEnsureBuilt_FailureNotMemoized(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, 8)

	boom := errors.New("decode failed")
	var calls int64
	failing := func(context.Context) (string, error) {
		atomic.AddInt64(&calls, 1)
		return "", boom
	}

	_, err := r.EnsureBuilt(context.Background(), "k", failing)
	require.ErrorIs(t, err, boom)

	h, err := r.EnsureBuilt(context.Background(), "k", func(context.Context) (string, error) {
		atomic.AddInt64(&calls, 1)
		return "ok", nil
	})
	require.NoError(t, err)
	defer h.Release()
	require.Equal(t, "ok", h.Value())
	require.EqualValues(t, 2, atomic.LoadInt64(&calls), "failure must not be cached")
}

// Concurrent waiters of a failing build all see the same error.
func TestEnsureBuilt_FailurePropagatesToAllWaiters(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, 8)

	boom := errors.New("fetch failed")
	gate := make(chan struct{})
	builder := func(context.Context) (string, error) {
		<-gate
		return "", boom
	}

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = r.EnsureBuilt(context.Background(), "k", builder)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, err := range errs {
		require.ErrorIs(t, err, boom)
	}
}

// Cancelling a follower's ctx detaches only that follower; the
// leader's build completes and later callers see the cached value.
func TestEnsureBuilt_FollowerCancel(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, 8)

	gate := make(chan struct{})
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		h, err := r.EnsureBuilt(context.Background(), "k", func(context.Context) (string, error) {
			<-gate
			return "v", nil
		})
		if err == nil {
			h.Release()
		}
	}()

	time.Sleep(20 * time.Millisecond) // leader is now in flight

	ctx, cancel := context.WithCancel(context.Background())
	followerErr := make(chan error, 1)
	go func() {
		_, err := r.EnsureBuilt(ctx, "k", func(context.Context) (string, error) {
			t.Error("follower must not run the builder")
			return "", nil
		})
		followerErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-followerErr, context.Canceled)

	close(gate)
	<-leaderDone

	h, err := r.EnsureBuilt(context.Background(), "k", func(context.Context) (string, error) {
		t.Error("value must already be cached")
		return "", nil
	})
	require.NoError(t, err)
	defer h.Release()
	require.Equal(t, "v", h.Value())
}

// The handle returned by EnsureBuilt pins the entry: eviction pressure
// cannot remove it until released.
func TestEnsureBuilt_HandlePins(t *testing.T) {
	t.Parallel()

	c := cache.New[string, string](cache.Options[string, string]{Capacity: 1})
	t.Cleanup(func() { _ = c.Close() })
	r := New[string, string](c)

	h, err := r.EnsureBuilt(context.Background(), "hot", func(context.Context) (string, error) {
		return "v", nil
	})
	require.NoError(t, err)

	// Churn: every insert overflows the capacity-1 cache, but "hot" is
	// pinned and must survive.
	for i := 0; i < 16; i++ {
		r.Set("churn", "x")
	}
	got, ok := r.Acquire("hot")
	require.True(t, ok, "pinned entry must survive churn")
	got.Release()

	h.Release()
}

// Hammer one key from many goroutines across repeated generations;
// exactly one build per generation.
func TestEnsureBuilt_RaceGenerations(t *testing.T) {
	r := newRegistry(t, 4)

	for gen := 0; gen < 10; gen++ {
		var calls int64
		var g errgroup.Group
		for i := 0; i < 16; i++ {
			g.Go(func() error {
				h, err := r.EnsureBuilt(context.Background(), "k", func(context.Context) (string, error) {
					atomic.AddInt64(&calls, 1)
					time.Sleep(time.Millisecond)
					return "v", nil
				})
				if err != nil {
					return err
				}
				h.Release()
				return nil
			})
		}
		require.NoError(t, g.Wait())
		require.EqualValues(t, 1, atomic.LoadInt64(&calls), "exactly one build per generation")

		// Drop the value so the next generation rebuilds.
		r.c.Delete("k")
	}
}
