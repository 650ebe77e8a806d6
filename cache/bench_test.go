package cache

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/IvanBrykalov/chunkstream/chunk"
)

// benchmarkMix exercises a read/load mix against a warm cache.
// It uses parallel workers (RunParallel spawns GOMAXPROCS goroutines).
func benchmarkMix(b *testing.B, loadPct int) {
	c := New[int](Options[int]{
		Capacity: 100_000,
		Loader: func(_ context.Context, k chunk.Key) (int, error) {
			return k.X ^ k.Z, nil
		},
	})
	b.Cleanup(func() { _ = c.Close() })

	// Preload a hot keyspace to get a realistic hit-rate.
	const hot = 1 << 14
	for i := 0; i < hot; i++ {
		c.Set(chunk.Key{X: i & 0xff, Z: i >> 8}, i)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	ctx := context.Background()

	b.RunParallel(func(pb *testing.PB) {
		// Independent RNG stream for each worker.
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			k := chunk.Key{X: i & 0xff, Z: (i >> 8) & 0x3f}
			if r.Intn(100) < loadPct {
				_, _ = c.GetOrLoad(ctx, k)
			} else {
				c.Get(k)
			}
			i++
		}
	})
}

func BenchmarkCache_MostlyGet(b *testing.B)       { benchmarkMix(b, 10) }
func BenchmarkCache_MostlyGetOrLoad(b *testing.B) { benchmarkMix(b, 90) }
