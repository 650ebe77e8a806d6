package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/chunkstream/chunk"
	"github.com/IvanBrykalov/chunkstream/internal/util"
)

// shard is an independent partition of the cache with its own lock, map,
// and an intrusive doubly linked list (head=MRU, tail=LRU).
type shard[V any] struct {
	// ---- guarded by mu ----
	mu   sync.RWMutex
	m    map[chunk.Key]*node[V]
	head *node[V] // MRU
	tail *node[V] // LRU
	len  int      // number of resident entries
	cap  int      // per-shard entry capacity

	opt Options[V]
	seq *atomic.Uint64 // cache-wide insertion sequence

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

// newShard initializes a shard with its per-shard capacity share.
func newShard[V any](capacity int, opt Options[V], seq *atomic.Uint64) *shard[V] {
	return &shard[V]{
		m:   make(map[chunk.Key]*node[V], capacity),
		cap: capacity,
		opt: opt,
		seq: seq,
	}
}

// Get returns the value for k, updating last-access metadata and promoting
// the entry to MRU. An entry past its TTL is evicted and reported as a miss.
func (s *shard[V]) Get(k chunk.Key) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		var zero V
		return zero, false
	}
	now := s.now()
	if s.expiredLocked(n, now) {
		s.evictNode(n, EvictTTL)
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		var zero V
		return zero, false
	}

	n.lastAccessed = now
	s.moveToFront(n)
	s.hits.Add(1)
	s.opt.Metrics.Hit()
	return n.val, true
}

// Set inserts or replaces the entry for k. Both paths refresh the insertion
// instant and assign a fresh sequence number: a replaced value is a new
// cache entry as far as TTL and eviction tie-breaking are concerned.
func (s *shard[V]) Set(k chunk.Key, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if n, ok := s.m[k]; ok {
		n.val = v
		n.insertedAt = now
		n.lastAccessed = now
		n.seq = s.seq.Add(1)
		s.moveToFront(n)
		s.trimLocked()
		return
	}

	n := &node[V]{
		key:          k,
		val:          v,
		insertedAt:   now,
		lastAccessed: now,
		seq:          s.seq.Add(1),
	}
	s.m[k] = n
	s.insertFront(n)
	s.opt.Metrics.Size(1)
	s.trimLocked()
}

// Remove deletes an entry by key. Returns true if the entry existed.
// Not counted as an eviction in metrics.
func (s *shard[V]) Remove(k chunk.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return false
	}
	s.removeNode(n)
	delete(s.m, k)
	s.opt.Metrics.Size(-1)
	return true
}

// Len returns the number of resident entries in this shard.
func (s *shard[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len
}

// sweepExpired evicts every entry whose value is older than ttl at instant
// now, returning the count removed.
func (s *shard[V]) sweepExpired(ttl time.Duration, now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	// Walk from the list tail: order within the sweep does not matter, but
	// walking the list (not the map) keeps the scan allocation-free.
	for n := s.tail; n != nil; {
		prev := n.prev
		if now-n.insertedAt > int64(ttl) {
			s.evictNode(n, EvictTTL)
			removed++
		}
		n = prev
	}
	return removed
}

// lruCandidate reports the shard's least-recently-used entry, if any.
// Used by the cache-level EvictLRU sweep to pick the global victim.
func (s *shard[V]) lruCandidate() (k chunk.Key, lastAccessed int64, seq uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tail == nil {
		return chunk.Key{}, 0, 0, false
	}
	return s.tail.key, s.tail.lastAccessed, s.tail.seq, true
}

// evictTailIf evicts the shard's LRU entry iff it is still the candidate the
// caller observed. Returns false when the tail changed concurrently.
func (s *shard[V]) evictTailIf(k chunk.Key, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tail == nil || s.tail.key != k || s.tail.seq != seq {
		return false
	}
	s.evictNode(s.tail, EvictLRUSweep)
	return true
}

// -------------------- internals (mu held) --------------------

func (s *shard[V]) expiredLocked(n *node[V], now int64) bool {
	if s.opt.TTL <= 0 {
		return false
	}
	return now-n.insertedAt > int64(s.opt.TTL)
}

func (s *shard[V]) now() int64 {
	if s.opt.Clock != nil {
		return s.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// insertFront inserts n at MRU in O(1).
func (s *shard[V]) insertFront(n *node[V]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
}

// moveToFront promotes n to MRU in O(1).
func (s *shard[V]) moveToFront(n *node[V]) {
	if n == s.head {
		return
	}
	// detach
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	// insert at head
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// removeNode removes n from the list and updates counters in O(1).
func (s *shard[V]) removeNode(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
}

// evictNode removes the node, updates metrics/counters, and fires OnEvict.
func (s *shard[V]) evictNode(n *node[V], reason EvictReason) {
	s.removeNode(n)
	delete(s.m, n.key)
	s.evicts.Add(1)
	s.opt.Metrics.Evict(reason)
	s.opt.Metrics.Size(-1)
	if cb := s.opt.OnEvict; cb != nil {
		// Called under the shard lock; callbacks must stay lightweight.
		cb(n.key, n.val, reason)
	}
}

// trimLocked evicts LRU entries until the shard is within its capacity share.
func (s *shard[V]) trimLocked() {
	for s.len > s.cap {
		tail := s.tail
		if tail == nil {
			break
		}
		s.evictNode(tail, EvictCapacity)
	}
}
