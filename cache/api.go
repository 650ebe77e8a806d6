package cache

import (
	"context"
	"time"

	"github.com/IvanBrykalov/chunkstream/chunk"
)

// Cache is the chunk cache manager interface.
// All methods are safe for concurrent use by multiple goroutines.
//
// Typical complexity is amortized O(1) per key operation: a map lookup plus
// constant-time list adjustments under a shard lock. The explicit eviction
// sweeps (EvictExpired, EvictLRU) are O(n).
type Cache[V any] interface {
	// GetOrLoad returns the value for k, loading it via Options.Loader on a
	// miss. Concurrent loads for the same key are coalesced onto one load
	// ticket: the loader runs exactly once and every caller receives the
	// same outcome. Loader errors are not cached; the next call retries.
	// If no Loader was configured, returns ErrNoLoader.
	GetOrLoad(ctx context.Context, k chunk.Key) (V, error)

	// Get returns the resident value for k and a presence flag, without
	// triggering a load. On hit the entry's last-access time is updated and
	// it is promoted to MRU.
	Get(k chunk.Key) (V, bool)

	// Set inserts or replaces the value for k, refreshing its insertion
	// instant, and trims the shard to capacity.
	Set(k chunk.Key, v V)

	// Invalidate removes the resident entry and detaches any in-flight load
	// ticket for k, so a subsequent GetOrLoad performs a fresh load.
	// It never blocks on a pending load; a detached load still resolves its
	// waiters but its result is not kept. Returns whether an entry or a
	// ticket was present.
	Invalidate(k chunk.Key) bool

	// EvictExpired removes every entry older than ttl (now - insertedAt >
	// ttl) and returns the number removed.
	EvictExpired(ttl time.Duration) int

	// EvictLRU shrinks the cache to at most target entries, removing the
	// globally least-recently-used first (insertion order breaks ties).
	// Returns the number removed.
	EvictLRU(target int) int

	// Stats returns cumulative hit/miss counters and the current size.
	Stats() Stats

	// Len returns the total number of resident entries across all shards.
	Len() int

	// Close marks the cache as closed. Future operations are ignored.
	Close() error
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

// HitRate returns hits/(hits+misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
