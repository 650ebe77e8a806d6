// Package control maintains the shared parallelism budget for the batch
// pipeline. A single Controller owns the budget; consumers (the scheduler,
// eviction janitors, anything with bounded concurrency) read it with Limit()
// before dispatching work, and a periodic feedback routine nudges it up or
// down one step at a time based on observed CPU/memory pressure and the
// throughput trend.
package control

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/chunkstream/internal/util"
)

// Config bounds and tunes the controller. Zero values get defaults in New().
type Config struct {
	// Min and Max bound the parallelism budget. Min defaults to 1,
	// Max to 2*Min when unset.
	Min int
	Max int

	// Initial is the starting budget, clamped into [Min, Max].
	// Defaults to Min.
	Initial int

	// Pressure thresholds in [0,1]. A sample above a high threshold steps
	// the budget down; below both low thresholds (with rising throughput)
	// steps it up.
	HighCPU float64 // default 0.85
	LowCPU  float64 // default 0.50
	HighMem float64 // default 0.85
	LowMem  float64 // default 0.60

	// MaxConsecutiveRaises is the anti-thrash counter threshold: once more
	// than this many raises have happened back to back, a mixed-signal
	// sample holds the budget and resets the counter. Default 3.
	MaxConsecutiveRaises uint8

	// MinSampleInterval drops Sample calls arriving faster than this
	// cadence (0 = apply every call). Useful when sampling is driven per
	// processed batch rather than by a timer.
	MinSampleInterval time.Duration

	// Metrics receives budget changes. Nil => NoopMetrics.
	Metrics Metrics

	// Clock overrides the time source (tests). Nil => time.Now().
	Clock Clock
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Metrics exposes controller-level observability hooks.
type Metrics interface {
	// Limit reports the budget after a sample was applied.
	Limit(v int)
	// Adjustment reports a step, +1 or -1.
	Adjustment(delta int)
}

// NoopMetrics is the default Metrics implementation.
type NoopMetrics struct{}

func (NoopMetrics) Limit(int)      {}
func (NoopMetrics) Adjustment(int) {}

var _ Metrics = NoopMetrics{}

// State is a point-in-time snapshot of the controller.
type State struct {
	Limit             int
	LastThroughput    float64
	ConsecutiveRaises uint8
	LastSampleAt      time.Time
}

// Controller is the process-wide parallelism budget. Limit() is a lock-free
// read; Sample() is the single writer and must not be called concurrently
// with itself (the Sampler serializes it naturally).
type Controller struct {
	cfg  Config
	cool *rate.Limiter // nil when MinSampleInterval is 0

	// limit is read concurrently by every dispatcher.
	limit util.PaddedAtomicInt64

	// processed accumulates Observe() counts between sampler ticks.
	processed util.PaddedAtomicInt64

	// ---- guarded by mu (single writer, snapshot readers) ----
	mu             sync.Mutex
	lastThroughput float64
	consecutive    uint8
	lastSampleAt   time.Time
}

// New constructs a Controller, applying defaults and clamping Initial.
func New(cfg Config) *Controller {
	if cfg.Min < 1 {
		cfg.Min = 1
	}
	if cfg.Max < cfg.Min {
		cfg.Max = 2 * cfg.Min
	}
	if cfg.Initial == 0 {
		cfg.Initial = cfg.Min
	}
	if cfg.Initial < cfg.Min {
		cfg.Initial = cfg.Min
	}
	if cfg.Initial > cfg.Max {
		cfg.Initial = cfg.Max
	}
	if cfg.HighCPU == 0 {
		cfg.HighCPU = 0.85
	}
	if cfg.LowCPU == 0 {
		cfg.LowCPU = 0.50
	}
	if cfg.HighMem == 0 {
		cfg.HighMem = 0.85
	}
	if cfg.LowMem == 0 {
		cfg.LowMem = 0.60
	}
	if cfg.MaxConsecutiveRaises == 0 {
		cfg.MaxConsecutiveRaises = 3
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetrics{}
	}

	c := &Controller{cfg: cfg}
	if cfg.MinSampleInterval > 0 {
		c.cool = rate.NewLimiter(rate.Every(cfg.MinSampleInterval), 1)
	}
	c.limit.Store(int64(cfg.Initial))
	cfg.Metrics.Limit(cfg.Initial)
	return c
}

// Limit returns the live parallelism budget. Non-blocking.
func (c *Controller) Limit() int { return int(c.limit.Load()) }

// Observe adds n to the throughput accumulator drained by the Sampler.
func (c *Controller) Observe(n int) {
	if n > 0 {
		c.processed.Add(int64(n))
	}
}

// drainProcessed returns and resets the accumulated count.
func (c *Controller) drainProcessed() int64 { return c.processed.Swap(0) }

// Sample applies one feedback cycle. Branches are evaluated in priority
// order, first match wins:
//
//  1. cpu or mem above the high threshold: step down (resource shortage).
//  2. cpu and mem below the low thresholds and throughput rising:
//     step up (headroom available and performance improving).
//  3. raise streak exceeded the cap: hold and reset the streak.
//  4. hold.
//
// The budget moves by at most one step per call and never leaves [Min, Max].
// The throughput reference is updated after every applied call regardless of
// the branch taken. NaN or infinite inputs are clamped: pressure values fold
// into [0,1] and a malformed throughput turns the cycle into a hold.
func (c *Controller) Sample(throughput, cpu, mem float64) {
	if c.cool != nil && !c.cool.Allow() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	badPressure := isMalformed(cpu) || isMalformed(mem)
	badThroughput := isMalformed(throughput)
	cpu = clamp01(cpu)
	mem = clamp01(mem)

	switch {
	case badPressure || badThroughput:
		// Malformed sample: no change this cycle.
	case cpu > c.cfg.HighCPU || mem > c.cfg.HighMem:
		c.step(-1)
		c.consecutive = 0
	case cpu < c.cfg.LowCPU && mem < c.cfg.LowMem && throughput > c.lastThroughput:
		c.step(+1)
		c.consecutive++
	case c.consecutive > c.cfg.MaxConsecutiveRaises:
		c.consecutive = 0
	}

	if !badThroughput {
		c.lastThroughput = throughput
	}
	c.lastSampleAt = c.nowTime()
	c.cfg.Metrics.Limit(int(c.limit.Load()))
}

// State returns a snapshot for tests and diagnostics.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Limit:             int(c.limit.Load()),
		LastThroughput:    c.lastThroughput,
		ConsecutiveRaises: c.consecutive,
		LastSampleAt:      c.lastSampleAt,
	}
}

// step moves the budget by delta, clamped to [Min, Max]. mu held.
func (c *Controller) step(delta int) {
	cur := int(c.limit.Load())
	next := cur + delta
	if next < c.cfg.Min {
		next = c.cfg.Min
	}
	if next > c.cfg.Max {
		next = c.cfg.Max
	}
	if next == cur {
		return
	}
	c.limit.Store(int64(next))
	c.cfg.Metrics.Adjustment(delta)
}

func (c *Controller) nowTime() time.Time {
	if c.cfg.Clock != nil {
		return time.Unix(0, c.cfg.Clock.NowUnixNano())
	}
	return time.Now()
}

func isMalformed(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
