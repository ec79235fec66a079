// Package metrics exposes the module's Prometheus instrumentation.
//
// All methods are safe on a nil *Metrics so instrumentation stays optional:
// components hold a possibly-nil pointer and call through unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the counters and gauges the connection manager and pool
// report.
//
// Thread Safety:
// Prometheus collectors are internally synchronized; Metrics adds no state
// of its own.
type Metrics struct {
	acquiresTotal          prometheus.Counter
	conflictsTotal         *prometheus.CounterVec
	placementInvalidations prometheus.Counter
	shardFailures          prometheus.Counter
	dialErrors             prometheus.Counter
	openWorkerConns        prometheus.Gauge
}

// New creates and registers the metric set with the given registerer.
//
// Parameters:
//   - reg: Target registry; prometheus.DefaultRegisterer in production,
//     prometheus.NewRegistry() in tests
//
// Returns:
//   - The registered metric set
//
// Example:
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	mgr := placement.NewManager(placement.Options{Metrics: m, ...})
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		acquiresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "placon",
			Name:      "acquires_total",
			Help:      "Connection acquisitions served by the placement manager.",
		}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "placon",
			Name:      "conflicts_total",
			Help:      "Acquisitions rejected by the placement decision table.",
		}, []string{"rule"}),
		placementInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "placon",
			Name:      "placement_invalidations_total",
			Help:      "Placements transitioned from finalized to inactive.",
		}),
		shardFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "placon",
			Name:      "shard_failures_total",
			Help:      "Shards whose modifying placements all failed at commit time.",
		}),
		dialErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "placon",
			Name:      "worker_dial_errors_total",
			Help:      "Failed connection attempts to worker nodes.",
		}),
		openWorkerConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "placon",
			Name:      "open_worker_connections",
			Help:      "Worker connections currently open in the pool.",
		}),
	}
	reg.MustRegister(
		m.acquiresTotal,
		m.conflictsTotal,
		m.placementInvalidations,
		m.shardFailures,
		m.dialErrors,
		m.openWorkerConns,
	)
	return m
}

// ObserveAcquire records one successful AcquireConnection call.
func (m *Metrics) ObserveAcquire() {
	if m == nil {
		return
	}
	m.acquiresTotal.Inc()
}

// ObserveConflict records one decision-table rejection, labeled by rule name.
func (m *Metrics) ObserveConflict(rule string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(rule).Inc()
}

// ObserveInvalidation records one finalized-to-inactive transition.
func (m *Metrics) ObserveInvalidation() {
	if m == nil {
		return
	}
	m.placementInvalidations.Inc()
}

// ObserveShardFailure records one shard whose modifications all failed.
func (m *Metrics) ObserveShardFailure() {
	if m == nil {
		return
	}
	m.shardFailures.Inc()
}

// ObserveDialError records one failed worker dial.
func (m *Metrics) ObserveDialError() {
	if m == nil {
		return
	}
	m.dialErrors.Inc()
}

// ConnOpened increments the open-connection gauge.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.openWorkerConns.Inc()
}

// ConnClosed decrements the open-connection gauge.
func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.openWorkerConns.Dec()
}
