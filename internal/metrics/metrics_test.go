package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// TestNilSafety tests that a nil metric set swallows every observation
func TestNilSafety(t *testing.T) {
	var m *Metrics

	m.ObserveAcquire()
	m.ObserveConflict("rule")
	m.ObserveInvalidation()
	m.ObserveShardFailure()
	m.ObserveDialError()
	m.ConnOpened()
	m.ConnClosed()
}

// TestCounters tests registration and counting
func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveAcquire()
	m.ObserveAcquire()
	m.ObserveConflict("dml-on-busy-connection")
	m.ObserveInvalidation()
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.acquiresTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflictsTotal.WithLabelValues("dml-on-busy-connection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.placementInvalidations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.openWorkerConns))
}

// TestDoubleRegistrationPanics tests MustRegister semantics
func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}
