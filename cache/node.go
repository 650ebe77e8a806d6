package cache

import "github.com/IvanBrykalov/chunkstream/chunk"

// node is an intrusive doubly linked list element owned by a shard.
// It stores the key/value alongside list links and the access metadata used
// for TTL expiry and deterministic LRU ordering.
type node[V any] struct {
	key chunk.Key
	val V

	// Intrusive list links: head is MRU, tail is LRU.
	prev *node[V]
	next *node[V]

	// insertedAt is the UnixNano instant the current value was stored;
	// refreshed on Set so TTL measures value age, not slot age.
	insertedAt int64

	// lastAccessed is the UnixNano instant of the most recent hit.
	lastAccessed int64

	// seq is a cache-wide monotonic insertion sequence number. When two
	// entries share a lastAccessed timestamp (coarse or fake clocks), the
	// lower seq is considered older, which makes eviction deterministic.
	seq uint64
}
