// Package ticket implements per-key load tickets: the coalescing primitive
// behind the cache's at-most-one-concurrent-load-per-key guarantee.
//
// A ticket is a singleflight call with two extra properties the cache needs:
//
//   - the leader/waiter split is explicit, so the cache can insert the loaded
//     entry before waiters are released (a Get issued right after a waiter
//     returns observes the entry);
//   - a ticket can be forgotten mid-flight (Invalidate), detaching it from
//     the key so the next Acquire starts a fresh load while the old leader
//     still resolves its waiters.
package ticket

import (
	"context"
	"sync"
)

// Ticket is one in-flight load. Waiters block on Wait; the leader publishes
// the shared outcome through Board.Resolve.
type Ticket[V any] struct {
	done chan struct{} // closed when val/err are published
	val  V
	err  error
}

// Wait blocks until the ticket resolves or ctx is done. Publishing happens
// before close(done), so reads after <-done observe the final values.
// Cancelling ctx unblocks only this waiter; the leader keeps running.
func (t *Ticket[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Board tracks at most one live ticket per key.
type Board[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*Ticket[V]
}

// Acquire returns the ticket for key, creating one if absent.
// leader is true for the caller that created the ticket; that caller owns the
// load and must call Resolve exactly once. Everyone else waits on the ticket.
func (b *Board[K, V]) Acquire(key K) (t *Ticket[V], leader bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.m == nil {
		b.m = make(map[K]*Ticket[V])
	}
	if c, ok := b.m[key]; ok {
		return c, false
	}
	c := &Ticket[V]{done: make(chan struct{})}
	b.m[key] = c
	return c, true
}

// Resolve publishes (v, err) to every waiter and retires the ticket.
// It reports whether the ticket was still registered for key: false means a
// Forget intervened while the load was running, and any value the leader
// inserted under this key must not stay visible.
func (b *Board[K, V]) Resolve(key K, t *Ticket[V], v V, err error) (live bool) {
	t.val, t.err = v, err
	close(t.done)

	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.m[key]; ok && cur == t {
		delete(b.m, key)
		return true
	}
	return false
}

// Forget detaches any in-flight ticket for key so the next Acquire starts a
// fresh load. The detached leader still resolves its waiters; Resolve will
// report live=false. Returns whether a ticket was present.
func (b *Board[K, V]) Forget(key K) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.m[key]; ok {
		delete(b.m, key)
		return true
	}
	return false
}

// Len returns the number of in-flight tickets.
func (b *Board[K, V]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.m)
}
