package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external
// dependencies. Atomic operations keep it safe under concurrent feeds.
type Metrics struct {
	barsProcessed   atomic.Uint64
	ordersResolved  atomic.Uint64
	ordersFilled    atomic.Uint64
	feedEvents      atomic.Uint64
	feedDropped     atomic.Uint64
	snapshotsStored atomic.Uint64
	errorsTotal     atomic.Uint64
}

// RecordBar records one processed bar.
func (m *Metrics) RecordBar() { m.barsProcessed.Add(1) }

// RecordOrderResolved records one resolution attempt.
func (m *Metrics) RecordOrderResolved() { m.ordersResolved.Add(1) }

// AddOrdersResolved records n resolution attempts at once.
func (m *Metrics) AddOrdersResolved(n int) { m.ordersResolved.Add(uint64(n)) }

// RecordOrderFilled records a filled order.
func (m *Metrics) RecordOrderFilled() { m.ordersFilled.Add(1) }

// AddOrdersFilled records n filled orders at once.
func (m *Metrics) AddOrdersFilled(n int) { m.ordersFilled.Add(uint64(n)) }

// RecordFeedEvent records one consumed feed event.
func (m *Metrics) RecordFeedEvent() { m.feedEvents.Add(1) }

// RecordFeedDropped records one event dropped by overflow policy.
func (m *Metrics) RecordFeedDropped() { m.feedDropped.Add(1) }

// RecordSnapshotStored records one persisted metrics record.
func (m *Metrics) RecordSnapshotStored() { m.snapshotsStored.Add(1) }

// RecordError records an error occurrence.
func (m *Metrics) RecordError() { m.errorsTotal.Add(1) }

// MetricsSnapshot is a point-in-time view of all counters.
type MetricsSnapshot struct {
	BarsProcessed   uint64
	OrdersResolved  uint64
	OrdersFilled    uint64
	FeedEvents      uint64
	FeedDropped     uint64
	SnapshotsStored uint64
	ErrorsTotal     uint64
	Timestamp       time.Time
}

// Snapshot returns current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		BarsProcessed:   m.barsProcessed.Load(),
		OrdersResolved:  m.ordersResolved.Load(),
		OrdersFilled:    m.ordersFilled.Load(),
		FeedEvents:      m.feedEvents.Load(),
		FeedDropped:     m.feedDropped.Load(),
		SnapshotsStored: m.snapshotsStored.Load(),
		ErrorsTotal:     m.errorsTotal.Load(),
		Timestamp:       time.Now(),
	}
}

// Reset clears all counters (for testing).
func (m *Metrics) Reset() {
	m.barsProcessed.Store(0)
	m.ordersResolved.Store(0)
	m.ordersFilled.Store(0)
	m.feedEvents.Store(0)
	m.feedDropped.Store(0)
	m.snapshotsStored.Store(0)
	m.errorsTotal.Store(0)
}
