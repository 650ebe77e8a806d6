// Package prom exports Prometheus adapters for the pipeline's metrics hooks:
// one per component (cache, controller, scheduler). All adapters are safe
// for concurrent use; Prometheus metric types are goroutine-safe.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/chunkstream/cache"
	"github.com/IvanBrykalov/chunkstream/control"
	"github.com/IvanBrykalov/chunkstream/sched"
)

// CacheAdapter implements cache.Metrics.
type CacheAdapter struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  *prometheus.CounterVec
	sizeEnt prometheus.Gauge
}

// NewCache constructs a Prometheus adapter for the chunk cache.
//   - reg:         registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns:          Prometheus namespace
//   - constLabels: static labels applied to all metrics (may be nil)
func NewCache(reg prometheus.Registerer, ns string, constLabels prometheus.Labels) *CacheAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &CacheAdapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "cache",
			Name:        "hits_total",
			Help:        "Chunk cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "cache",
			Name:        "misses_total",
			Help:        "Chunk cache misses",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "cache",
				Name:        "evictions_total",
				Help:        "Chunk cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "cache",
			Name:        "size_entries",
			Help:        "Number of resident chunk entries",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.sizeEnt)
	return a
}

func (a *CacheAdapter) Hit()  { a.hits.Inc() }
func (a *CacheAdapter) Miss() { a.misses.Inc() }

func (a *CacheAdapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(reason(r)).Inc()
}

func (a *CacheAdapter) Size(delta int) { a.sizeEnt.Add(float64(delta)) }

// reason maps EvictReason to a stable label value.
func reason(r cache.EvictReason) string {
	switch r {
	case cache.EvictTTL:
		return "ttl"
	case cache.EvictLRUSweep:
		return "lru_sweep"
	default:
		return "capacity"
	}
}

var _ cache.Metrics = (*CacheAdapter)(nil)

// ControlAdapter implements control.Metrics.
type ControlAdapter struct {
	limit   prometheus.Gauge
	adjusts *prometheus.CounterVec
}

// NewControl constructs a Prometheus adapter for the concurrency controller.
func NewControl(reg prometheus.Registerer, ns string, constLabels prometheus.Labels) *ControlAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &ControlAdapter{
		limit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "control",
			Name:        "parallelism_limit",
			Help:        "Current parallelism budget",
			ConstLabels: constLabels,
		}),
		adjusts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "control",
				Name:        "adjustments_total",
				Help:        "Budget adjustments by direction",
				ConstLabels: constLabels,
			},
			[]string{"direction"},
		),
	}
	reg.MustRegister(a.limit, a.adjusts)
	return a
}

func (a *ControlAdapter) Limit(v int) { a.limit.Set(float64(v)) }

func (a *ControlAdapter) Adjustment(delta int) {
	dir := "up"
	if delta < 0 {
		dir = "down"
	}
	a.adjusts.WithLabelValues(dir).Inc()
}

var _ control.Metrics = (*ControlAdapter)(nil)

// SchedAdapter implements sched.Metrics.
type SchedAdapter struct {
	groups   prometheus.Counter
	requests prometheus.Counter
	failures prometheus.Counter
	derived  prometheus.Counter
}

// NewSched constructs a Prometheus adapter for the batch scheduler.
func NewSched(reg prometheus.Registerer, ns string, constLabels prometheus.Labels) *SchedAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &SchedAdapter{
		groups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "sched",
			Name:        "groups_applied_total",
			Help:        "Chunk groups written back",
			ConstLabels: constLabels,
		}),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "sched",
			Name:        "requests_applied_total",
			Help:        "Update requests applied",
			ConstLabels: constLabels,
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "sched",
			Name:        "group_failures_total",
			Help:        "Chunk groups that failed to load or apply",
			ConstLabels: constLabels,
		}),
		derived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "sched",
			Name:        "derived_queued_total",
			Help:        "Derived requests queued for later passes",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.groups, a.requests, a.failures, a.derived)
	return a
}

func (a *SchedAdapter) GroupApplied(requests int) {
	a.groups.Inc()
	a.requests.Add(float64(requests))
}

func (a *SchedAdapter) GroupFailed() { a.failures.Inc() }

func (a *SchedAdapter) DerivedQueued(n int) { a.derived.Add(float64(n)) }

var _ sched.Metrics = (*SchedAdapter)(nil)
