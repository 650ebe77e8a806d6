package cache

import (
	"context"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IvanBrykalov/chunkstream/chunk"
)

// A mixed workload of concurrent GetOrLoad/Set/Invalidate/eviction sweeps on
// random keys. Should pass under `-race` without detector reports.
func TestRace_Basic(t *testing.T) {
	c := New[int](Options[int]{
		Capacity: 2_048,
		Shards:   32,
		TTL:      50 * time.Millisecond,
		Loader: func(_ context.Context, k chunk.Key) (int, error) {
			return k.X*31 + k.Z, nil
		},
	})
	t.Cleanup(func() { _ = c.Close() })

	workers := 4 * runtime.GOMAXPROCS(0)
	const radius = 64
	deadline := time.Now().Add(2 * time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			ctx := context.Background()
			for time.Now().Before(deadline) {
				k := chunk.Key{X: r.Intn(radius) - radius/2, Z: r.Intn(radius) - radius/2}
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% — Invalidate
					c.Invalidate(k)
				case 5, 6: // ~2% — pressure sweep
					c.EvictLRU(1_024)
				case 7: // ~1% — TTL sweep
					c.EvictExpired(50 * time.Millisecond)
				case 8, 9, 10, 11, 12: // ~5% — Set
					c.Set(k, r.Int())
				default: // ~87% — GetOrLoad
					_, _ = c.GetOrLoad(ctx, k)
				}
			}
		}(w)
	}
	wg.Wait()
}

// Many goroutines call GetOrLoad on the same key concurrently.
// The Loader should run at most once per generation (ticket coalescing).
func TestRace_GetOrLoad(t *testing.T) {
	var calls int64

	c := New[string](Options[string]{
		Capacity: 64,
		Loader: func(_ context.Context, k chunk.Key) (string, error) {
			atomic.AddInt64(&calls, 1)
			time.Sleep(2 * time.Millisecond) // simulate I/O
			return k.String(), nil
		},
	})
	t.Cleanup(func() { _ = c.Close() })

	const N = 100
	var wg sync.WaitGroup
	wg.Add(N)
	for i := 0; i < N; i++ {
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), chunk.Key{X: 1, Z: 2})
			if err != nil || v != "(1,2)" {
				t.Errorf("v=%q err=%v", v, err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("loader ran %d times, want 1", got)
	}
}
