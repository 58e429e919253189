package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	ordersCreated   atomic.Uint64
	ordersFlipped   atomic.Uint64
	relayErrors     atomic.Uint64
	jobsExecuted    atomic.Uint64
	jobsRetried     atomic.Uint64
	reconcilePasses atomic.Uint64
	errorsTotal     atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordOrderCreated records a new resting order accepted by the ledger.
func (m *Metrics) RecordOrderCreated() {
	m.ordersCreated.Add(1)
}

// RecordOrderFlipped records a filled order replaced by its counter-order.
func (m *Metrics) RecordOrderFlipped() {
	m.ordersFlipped.Add(1)
}

// RecordRelayError records a failed relay submission.
func (m *Metrics) RecordRelayError() {
	m.relayErrors.Add(1)
}

// RecordJobExecuted records a deferred job whose handler completed.
func (m *Metrics) RecordJobExecuted() {
	m.jobsExecuted.Add(1)
}

// RecordJobRetried records a deferred job rescheduled after a handler error.
func (m *Metrics) RecordJobRetried() {
	m.jobsRetried.Add(1)
}

// RecordReconcilePass records one completed reconciliation sweep.
func (m *Metrics) RecordReconcilePass() {
	m.reconcilePasses.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	OrdersCreated   uint64
	OrdersFlipped   uint64
	RelayErrors     uint64
	JobsExecuted    uint64
	JobsRetried     uint64
	ReconcilePasses uint64
	ErrorsTotal     uint64
	Timestamp       time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		OrdersCreated:   m.ordersCreated.Load(),
		OrdersFlipped:   m.ordersFlipped.Load(),
		RelayErrors:     m.relayErrors.Load(),
		JobsExecuted:    m.jobsExecuted.Load(),
		JobsRetried:     m.jobsRetried.Load(),
		ReconcilePasses: m.reconcilePasses.Load(),
		ErrorsTotal:     m.errorsTotal.Load(),
		Timestamp:       time.Now(),
	}
}

// Reset zeroes all counters. Test helper.
func (m *Metrics) Reset() {
	m.ordersCreated.Store(0)
	m.ordersFlipped.Store(0)
	m.relayErrors.Store(0)
	m.jobsExecuted.Store(0)
	m.jobsRetried.Store(0)
	m.reconcilePasses.Store(0)
	m.errorsTotal.Store(0)
}
