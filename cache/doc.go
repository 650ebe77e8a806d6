// Package cache provides the chunk streaming cache: a sharded, in-memory
// store keyed by chunk coordinates, with coalesced lazy loading, TTL expiry,
// LRU-bounded capacity, lightweight metrics hooks, and non-blocking
// invalidation.
//
// # Design
//
//   - Concurrency: the cache is split into shards, each protected by an
//     RWMutex. The default shard count is chosen by a heuristic
//     (ReasonableShardCount) and is a power of two. Sharding reduces
//     contention while keeping memory overhead small.
//
//   - Storage: each shard keeps a map[chunk.Key]*node for lookups and an
//     intrusive MRU↔LRU doubly linked list for ordering. All per-key
//     operations are O(1) expected.
//
//   - Loading: GetOrLoad coalesces concurrent loads for an absent key onto
//     one load ticket. The first caller becomes the leader and invokes the
//     injected Loader exactly once; every waiter receives the same outcome.
//     Errors are never cached — the ticket is retired and the next call
//     retries the load.
//
//   - TTL: entries record their insertion instant. Expiry is lazy on read
//     (an expired entry counts as a miss and is evicted) and can also be
//     swept explicitly with EvictExpired.
//
//   - Capacity: each shard trims to its share of Capacity on insert, evicting
//     from the LRU tail. EvictLRU additionally shrinks the whole cache to a
//     target size, always removing the globally least-recently-used entry
//     first; ties are broken by insertion order so eviction is deterministic.
//
//   - Invalidation: Invalidate removes the resident entry and detaches any
//     in-flight load ticket. A load that completes after being detached still
//     resolves its waiters, but its entry is removed right after insertion,
//     so a subsequent GetOrLoad performs a fresh load (at-least-once
//     semantics; Invalidate never blocks on a pending load).
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     NoopMetrics is used by default; plug the prom adapter to export them.
//
// # Basic usage
//
//	c := cache.New[*chunk.Chunk](cache.Options[*chunk.Chunk]{
//	    Capacity: 4096,
//	    TTL:      time.Minute,
//	    Loader: func(ctx context.Context, k chunk.Key) (*chunk.Chunk, error) {
//	        return store.Load(ctx, k)
//	    },
//	})
//	ch, err := c.GetOrLoad(ctx, chunk.Key{X: 0, Z: 0})
//
// All methods are safe for concurrent use by multiple goroutines.
package cache
