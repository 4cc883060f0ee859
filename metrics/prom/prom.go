// Package prom exports cache and pool metrics to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/assetcache/cache"
	"github.com/IvanBrykalov/assetcache/pool"
)

// CacheAdapter implements cache.Metrics and exports Prometheus
// counters/gauges. Safe for concurrent use; all Prometheus metric
// types are goroutine-safe.
type CacheAdapter struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	evicts     *prometheus.CounterVec
	sizeEnt    prometheus.Gauge
	sizePinned prometheus.Gauge
}

// NewCache constructs a Prometheus adapter for cache.Metrics.
//   - reg:         registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:     Prometheus namespace and subsystem
//   - constLabels: static labels applied to all metrics (may be nil)
func NewCache(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *CacheAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &CacheAdapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: constLabels,
		}),
		sizePinned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_pinned",
			Help:        "Number of resident entries currently pinned",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.sizeEnt, a.sizePinned)
	return a
}

// Hit increments the hit counter.
func (a *CacheAdapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *CacheAdapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *CacheAdapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(reason(r)).Inc()
}

// Size updates gauges for resident and pinned entry counts.
func (a *CacheAdapter) Size(entries, pinned int) {
	a.sizeEnt.Set(float64(entries))
	a.sizePinned.Set(float64(pinned))
}

// reason maps EvictReason to a stable label value.
func reason(r cache.EvictReason) string {
	switch r {
	case cache.EvictClear:
		return "clear"
	default:
		return "sweep"
	}
}

// PoolAdapter implements pool.Metrics.
type PoolAdapter struct {
	queueDepth prometheus.Gauge
	busySlots  prometheus.Gauge
	tasksDone  *prometheus.CounterVec
	slotDeaths prometheus.Counter
}

// NewPool constructs a Prometheus adapter for pool.Metrics. Argument
// conventions match NewCache.
func NewPool(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *PoolAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &PoolAdapter{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "queue_depth",
			Help:        "Tasks waiting for a free worker slot",
			ConstLabels: constLabels,
		}),
		busySlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "busy_slots",
			Help:        "Worker slots currently handshaking or executing",
			ConstLabels: constLabels,
		}),
		tasksDone: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "tasks_done_total",
				Help:        "Settled tasks by outcome",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		slotDeaths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "slot_deaths_total",
			Help:        "Worker slots pruned after a fault",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.queueDepth, a.busySlots, a.tasksDone, a.slotDeaths)
	return a
}

// QueueDepth updates the queue depth gauge.
func (a *PoolAdapter) QueueDepth(n int) { a.queueDepth.Set(float64(n)) }

// BusySlots updates the busy slots gauge.
func (a *PoolAdapter) BusySlots(n int) { a.busySlots.Set(float64(n)) }

// TaskDone increments the settled-task counter with an outcome label.
func (a *PoolAdapter) TaskDone(o pool.Outcome) {
	a.tasksDone.WithLabelValues(string(o)).Inc()
}

// SlotDied increments the pruned-slot counter.
func (a *PoolAdapter) SlotDied() { a.slotDeaths.Inc() }

// Compile-time checks: adapters implement their interfaces.
var (
	_ cache.Metrics = (*CacheAdapter)(nil)
	_ pool.Metrics  = (*PoolAdapter)(nil)
)
