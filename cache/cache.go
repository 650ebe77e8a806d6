package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/IvanBrykalov/chunkstream/chunk"
	"github.com/IvanBrykalov/chunkstream/internal/ticket"
	"github.com/IvanBrykalov/chunkstream/internal/util"
)

// ErrNoLoader is returned by GetOrLoad when no Loader was configured in Options.
var ErrNoLoader = errors.New("cache: no Loader provided")

// manager is the sharded chunk cache. All methods are safe for concurrent
// use by multiple goroutines.
type manager[V any] struct {
	shards []*shard[V]
	closed atomic.Bool
	seq    atomic.Uint64 // insertion sequence, shared by all shards

	opt Options[V]

	// tickets coalesce concurrent loads in GetOrLoad: at most one in-flight
	// load per key, invalidation detaches the ticket mid-flight.
	tickets ticket.Board[chunk.Key, V]

	// loadSem caps concurrently running loader calls (nil = unlimited).
	loadSem *semaphore.Weighted
}

// New constructs a cache with the provided Options.
// Defaults:
//   - nil Metrics  -> NoopMetrics
//   - Shards <= 0  -> auto, rounded up to the next power of two
func New[V any](opt Options[V]) Cache[V] {
	if opt.Capacity <= 0 {
		panic("Capacity must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	sh := opt.Shards
	if sh <= 0 {
		sh = util.ReasonableShardCount()
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}

	m := &manager[V]{opt: opt}
	if opt.LoadParallel > 0 {
		m.loadSem = semaphore.NewWeighted(int64(opt.LoadParallel))
	}

	m.shards = make([]*shard[V], sh)
	perShardCap := (opt.Capacity + sh - 1) / sh // split capacity evenly (ceil)
	for i := 0; i < sh; i++ {
		m.shards[i] = newShard(perShardCap, opt, &m.seq)
	}
	return m
}

// ---- Cache[V] implementation ----

// Get returns the resident value for k without triggering a load.
func (c *manager[V]) Get(k chunk.Key) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.getShard(k).Get(k)
}

// Set inserts or replaces the value for k and trims the shard to capacity.
func (c *manager[V]) Set(k chunk.Key, v V) {
	if c.closed.Load() {
		return
	}
	c.getShard(k).Set(k, v)
}

// GetOrLoad returns the value for k; on miss it loads via Options.Loader,
// coalescing concurrent loads for the same key onto one ticket.
func (c *manager[V]) GetOrLoad(ctx context.Context, k chunk.Key) (V, error) {
	// fast path
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	if c.opt.Loader == nil {
		var zero V
		return zero, ErrNoLoader
	}

	t, leader := c.tickets.Acquire(k)
	if !leader {
		// Fan-in: wait for the shared outcome. Cancellation unblocks only
		// this waiter; the leader's load keeps running.
		return t.Wait(ctx)
	}

	// Double-check after winning leadership: another leader may have
	// finished between our miss and Acquire.
	if v, ok := c.Get(k); ok {
		c.tickets.Resolve(k, t, v, nil)
		return v, nil
	}

	v, err := c.load(ctx, k)
	if err == nil {
		c.Set(k, v)
	}
	if live := c.tickets.Resolve(k, t, v, err); !live && err == nil {
		// Torn invalidate: the key was invalidated while we were loading.
		// Waiters still get the value (at-least-once), but the entry must
		// not stay visible — the next GetOrLoad loads fresh.
		c.getShard(k).Remove(k)
	}
	return v, err
}

// Invalidate removes the resident entry and detaches any in-flight ticket.
func (c *manager[V]) Invalidate(k chunk.Key) bool {
	if c.closed.Load() {
		return false
	}
	removed := c.getShard(k).Remove(k)
	forgot := c.tickets.Forget(k)
	return removed || forgot
}

// EvictExpired removes entries older than ttl across all shards.
func (c *manager[V]) EvictExpired(ttl time.Duration) int {
	if c.closed.Load() || ttl <= 0 {
		return 0
	}
	now := c.now()
	removed := 0
	for _, s := range c.shards {
		removed += s.sweepExpired(ttl, now)
	}
	return removed
}

// EvictLRU shrinks the cache to at most target entries, always removing the
// globally least-recently-used entry first. When two candidates share an
// access timestamp the lower insertion sequence loses, so the sweep is
// deterministic under a fake clock.
func (c *manager[V]) EvictLRU(target int) int {
	if c.closed.Load() || target < 0 {
		return 0
	}
	removed := 0
	for c.Len() > target {
		var (
			victim     *shard[V]
			victimKey  chunk.Key
			victimSeq  uint64
			oldestTime int64
			oldestSeq  uint64
			haveVictim bool
		)
		for _, s := range c.shards {
			k, at, seq, ok := s.lruCandidate()
			if !ok {
				continue
			}
			if !haveVictim || at < oldestTime || (at == oldestTime && seq < oldestSeq) {
				victim, victimKey, victimSeq = s, k, seq
				oldestTime, oldestSeq = at, seq
				haveVictim = true
			}
		}
		if !haveVictim {
			break
		}
		if !victim.evictTailIf(victimKey, victimSeq) {
			// Tail moved under a concurrent access; re-scan. The outer
			// Len() check guarantees forward progress or exit.
			continue
		}
		removed++
	}
	return removed
}

// Stats aggregates counters across shards.
func (c *manager[V]) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		st.Hits += uint64(s.hits.Load())
		st.Misses += uint64(s.misses.Load())
		st.Evictions += s.evicts.Load()
		st.Size += s.Len()
	}
	return st
}

// Len returns the total number of resident entries across all shards.
func (c *manager[V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.Len()
	}
	return total
}

// Close marks the cache as closed. Future operations are ignored.
func (c *manager[V]) Close() error {
	c.closed.Store(true)
	return nil
}

// ---- helpers ----

// load invokes the loader once, honoring the optional concurrency cap and
// rate limit. The ticket layer guarantees single invocation per key.
func (c *manager[V]) load(ctx context.Context, k chunk.Key) (V, error) {
	var zero V
	if c.loadSem != nil {
		if err := c.loadSem.Acquire(ctx, 1); err != nil {
			return zero, err
		}
		defer c.loadSem.Release(1)
	}
	if c.opt.LoadLimit != nil {
		if err := c.opt.LoadLimit.Wait(ctx); err != nil {
			return zero, err
		}
	}
	return c.opt.Loader(ctx, k)
}

// getShard picks a shard by hashing the key and masking with len-1.
func (c *manager[V]) getShard(k chunk.Key) *shard[V] {
	h := util.HashPair(k.X, k.Z)
	return c.shards[util.ShardIndex(h, len(c.shards))]
}

func (c *manager[V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}
