// Package sched implements the spatial batch scheduler: it groups update
// requests by the chunk they target, applies each group against the chunk
// cache with parallelism bounded by the concurrency controller, and expands
// cross-chunk side effects as queued derived requests rather than recursive
// calls.
//
// Within one chunk group, requests are applied in submission order (FIFO),
// so results are deterministic for a fixed input: a later request targeting
// the same cell wins. Across groups there is no ordering guarantee — groups
// are independent and may run concurrently.
//
// Write-back is atomic per chunk: each group mutates a private copy and
// publishes it with a single Set, so readers (and cancelled submissions)
// never observe a half-applied batch.
package sched

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/chunkstream/chunk"
)

// ChunkCache is the slice of the cache manager the scheduler needs.
// Satisfied by cache.Cache[*chunk.Chunk].
type ChunkCache interface {
	GetOrLoad(ctx context.Context, k chunk.Key) (*chunk.Chunk, error)
	Set(k chunk.Key, v *chunk.Chunk)
}

// Limiter is the slice of the concurrency controller the scheduler needs.
// Satisfied by *control.Controller.
type Limiter interface {
	// Limit returns the live parallelism budget.
	Limit() int
	// Observe reports processed requests back for throughput feedback.
	Observe(n int)
}

// Metrics exposes scheduler-level observability hooks.
type Metrics interface {
	GroupApplied(requests int)
	GroupFailed()
	DerivedQueued(n int)
}

// NoopMetrics is the default Metrics implementation.
type NoopMetrics struct{}

func (NoopMetrics) GroupApplied(int)  {}
func (NoopMetrics) GroupFailed()      {}
func (NoopMetrics) DerivedQueued(int) {}

var _ Metrics = NoopMetrics{}

// Options tunes the scheduler. Zero values get defaults in New().
type Options struct {
	// MaxPasses caps Run's submit+flush iterations so chains of derived
	// requests always terminate. Default 4.
	MaxPasses int

	// Metrics receives group/derived signals. Nil => NoopMetrics.
	Metrics Metrics

	// Logger receives per-pass diagnostics. Nil discards output.
	Logger *slog.Logger
}

// Scheduler drives batched chunk updates through the cache.
// Safe for concurrent use; the derived queue is shared across submissions.
type Scheduler struct {
	cache ChunkCache
	ctrl  Limiter
	opt   Options

	mu      sync.Mutex
	derived []chunk.Update
}

// New wires a scheduler to a chunk cache and a concurrency limiter.
func New(cache ChunkCache, ctrl Limiter, opt Options) *Scheduler {
	if cache == nil || ctrl == nil {
		panic("sched: cache and limiter are required")
	}
	if opt.MaxPasses <= 0 {
		opt.MaxPasses = 4
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{cache: cache, ctrl: ctrl, opt: opt}
}

// Submit partitions reqs by target chunk and applies each group through the
// cache. The concurrency budget is read once per call, so one submission
// behaves deterministically even while the controller adjusts.
//
// Individual group failures are collected in Summary.Failed; Submit returns
// an error only when the context is cancelled or every group failed.
// Derived requests produced by block updates are queued for FlushDerived,
// never applied inline.
func (s *Scheduler) Submit(ctx context.Context, reqs []chunk.Update) (Summary, error) {
	return s.applyPass(ctx, reqs)
}

// FlushDerived drains the derived-request queue accumulated by previous
// passes and processes it with the same partition/apply algorithm.
func (s *Scheduler) FlushDerived(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	pending := s.derived
	s.derived = nil
	s.mu.Unlock()
	return s.applyPass(ctx, pending)
}

// PendingDerived returns the number of queued derived requests.
func (s *Scheduler) PendingDerived() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.derived)
}

// Run submits reqs and then flushes derived requests until the queue is
// empty or the pass cap is reached, returning the aggregate summary.
func (s *Scheduler) Run(ctx context.Context, reqs []chunk.Update) (Summary, error) {
	total, err := s.Submit(ctx, reqs)
	if err != nil {
		return total, err
	}
	for pass := 1; pass < s.opt.MaxPasses && s.PendingDerived() > 0; pass++ {
		sum, err := s.FlushDerived(ctx)
		total.add(sum)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// applyPass is one partition/dispatch/apply cycle.
func (s *Scheduler) applyPass(ctx context.Context, reqs []chunk.Update) (Summary, error) {
	if len(reqs) == 0 {
		return Summary{}, nil
	}

	keys, groups := partition(reqs)

	// One budget read for the whole pass.
	limit := s.ctrl.Limit()
	if limit < 1 {
		limit = 1
	}
	if limit > len(keys) {
		limit = len(keys)
	}

	var (
		mu       sync.Mutex
		sum      Summary
		produced []chunk.Update
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, k := range keys {
		k := k
		group := groups[k]
		g.Go(func() error {
			if gctx.Err() != nil {
				// Abandoned before write-back: no partial state.
				return nil
			}

			cur, err := s.cache.GetOrLoad(gctx, k)
			if err != nil {
				s.opt.Metrics.GroupFailed()
				s.opt.Logger.Warn("chunk group failed", "key", k.String(), "error", err)
				mu.Lock()
				sum.Failed = append(sum.Failed, Failure{Key: k, Err: &ChunkUnavailableError{Key: k, Err: err}})
				mu.Unlock()
				return nil
			}

			next := cur.Clone()
			derived := make([]chunk.Update, 0, len(group))
			for _, u := range group {
				next.Apply(u)
				derived = append(derived, u.Derived()...)
			}

			if gctx.Err() != nil {
				// Cancelled mid-group: abandon without writing back.
				return nil
			}
			s.cache.Set(k, next)

			s.opt.Metrics.GroupApplied(len(group))
			mu.Lock()
			sum.ChunksTouched++
			sum.RequestsApplied += len(group)
			produced = append(produced, derived...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // group fns never return errors; failures are collected

	if err := ctx.Err(); err != nil {
		return sum, err
	}

	if len(produced) > 0 {
		s.mu.Lock()
		s.derived = append(s.derived, produced...)
		s.mu.Unlock()
		sum.DerivedQueued = len(produced)
		s.opt.Metrics.DerivedQueued(len(produced))
	}

	s.ctrl.Observe(sum.RequestsApplied)

	if len(sum.Failed) == len(keys) {
		return sum, ErrAllFailed
	}
	s.opt.Logger.Debug("pass applied",
		"chunks", sum.ChunksTouched,
		"requests", sum.RequestsApplied,
		"derived", sum.DerivedQueued,
		"failed", len(sum.Failed),
	)
	return sum, nil
}

// partition splits requests into per-chunk groups, preserving submission
// order inside each group. Keys come back sorted so dispatch order is stable.
func partition(reqs []chunk.Update) ([]chunk.Key, map[chunk.Key][]chunk.Update) {
	groups := make(map[chunk.Key][]chunk.Update)
	for _, u := range reqs {
		k := u.Key()
		groups[k] = append(groups[k], u)
	}
	keys := make([]chunk.Key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Z < keys[j].Z
	})
	return keys, groups
}
