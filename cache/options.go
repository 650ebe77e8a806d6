package cache

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/chunkstream/chunk"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictCapacity — removed while trimming a shard to its capacity share.
	EvictCapacity EvictReason = iota
	// EvictTTL — expired by TTL (lazily on read, or via EvictExpired).
	EvictTTL
	// EvictLRUSweep — removed by an explicit EvictLRU pressure sweep.
	EvictLRUSweep
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	// Size reports a change in resident entry count
	// (+1 on insert, -1 on evict/remove).
	Size(delta int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Loader fetches a chunk value on cache miss. It may be slow or blocking and
// must be safe to call concurrently for distinct keys; the cache guarantees
// it is never called concurrently for the same key.
type Loader[V any] func(ctx context.Context, k chunk.Key) (V, error)

// Options configures the cache behavior. Zero values are safe;
// sane defaults are applied in New():
//   - Shards <= 0  => auto (rounded up to power of two)
//   - nil Metrics  => NoopMetrics
type Options[V any] struct {
	// Capacity is the entry count limit. Must be > 0.
	Capacity int

	// Shards defines the number of shards. If 0, an automatic value is chosen
	// (≈ 2*GOMAXPROCS) and rounded to the next power of two.
	Shards int

	// TTL is the maximum entry age before a read treats it as absent
	// (0 = entries never expire by age).
	TTL time.Duration

	// Loader fetches a value on cache miss. Used by GetOrLoad.
	Loader Loader[V]

	// LoadLimit rate-limits loader invocations across all keys
	// (nil = unlimited). Leaders wait on the limiter before loading.
	LoadLimit *rate.Limiter

	// LoadParallel caps the number of concurrently running loader calls
	// across distinct keys (0 = unlimited).
	LoadParallel int

	// OnEvict is called for every eviction under the shard lock;
	// keep callbacks lightweight. Explicit Invalidate is not an eviction.
	OnEvict func(k chunk.Key, v V, reason EvictReason)

	// Metrics receives Hit/Miss/Evict/Size signals. Nil => NoopMetrics.
	Metrics Metrics

	// Clock allows overriding the time source (tests). Nil => time.Now().
	Clock Clock
}
