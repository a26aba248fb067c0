// Package metrics exposes dry-run runtime counters to Prometheus.
//
// A Collector implements snapstore.Observer and is handed to the runtime at
// construction. Nothing is registered globally; callers pass their own
// prometheus.Registerer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dryrun"

// Collector holds the runtime metric set.
type Collector struct {
	recorded     *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	missing      *prometheus.CounterVec
	wraps        prometheus.Counter
	activeChains prometheus.Gauge
}

// New creates the metric set and registers it with reg. A nil reg leaves
// the metrics unregistered, which is what tests and one-shot CLI runs use.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		recorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_recorded_total",
			Help:      "Snapshots stored at divergence points",
		}, []string{"table"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_dropped_total",
			Help:      "Captures discarded because the chain already held a snapshot",
		}, []string{"table"}),
		missing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_missing_total",
			Help:      "Restores that found no snapshot for their signature",
		}, []string{"table"}),
		wraps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_wraps_total",
			Help:      "Tasks and executors wrapped to carry baggage",
		}),
		activeChains: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_chains",
			Help:      "Divergence chains begun and not yet ended",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.recorded, c.dropped, c.missing, c.wraps, c.activeChains)
	}
	return c
}

// SnapshotRecorded implements snapstore.Observer.
func (c *Collector) SnapshotRecorded(table string) { c.recorded.WithLabelValues(table).Inc() }

// SnapshotDropped implements snapstore.Observer.
func (c *Collector) SnapshotDropped(table string) { c.dropped.WithLabelValues(table).Inc() }

// SnapshotMissing implements snapstore.Observer.
func (c *Collector) SnapshotMissing(table string) { c.missing.WithLabelValues(table).Inc() }

// ContextWrapped counts one wrapped task or executor.
func (c *Collector) ContextWrapped() { c.wraps.Inc() }

// ChainBegun increments the active chain gauge.
func (c *Collector) ChainBegun() { c.activeChains.Inc() }

// ChainEnded decrements the active chain gauge.
func (c *Collector) ChainEnded() { c.activeChains.Dec() }
