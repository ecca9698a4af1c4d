package obs

import (
	"sync/atomic"
	"time"

	"eventtrader/internal/risk"
	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"
)

const maxEventType = int(schema.EventScheduled)

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	eventCounts      [maxEventType + 1]uint64
	orderKindCounts  [schema.OrderEventKindCount]uint64
	riskReasonCounts [risk.ReasonCount]uint64
	errorCounts      map[exception.Class]*uint64
	ordersSubmitted  uint64
	transitions      uint64
	duplicates       uint64
	actionFailures   uint64
	escalations      uint64
	queueDrops       uint64
	queueClosed      uint64

	eventLatency     LatencyStats
	orderFlowLatency LatencyStats
	riskEvalLatency  LatencyStats
	dispatchLatency  LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts      map[schema.EventType]uint64
	OrderKindCounts  map[schema.OrderEventKind]uint64
	RiskReasonCounts map[risk.Reason]uint64
	ErrorCounts      map[exception.Class]uint64
	OrdersSubmitted  uint64
	Transitions      uint64
	Duplicates       uint64
	ActionFailures   uint64
	Escalations      uint64
	QueueDrops       uint64
	QueueClosed      uint64
	EventLatency     LatencySnapshot
	OrderFlowLatency LatencySnapshot
	RiskEvalLatency  LatencySnapshot
	DispatchLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	m := &Metrics{errorCounts: make(map[exception.Class]*uint64)}
	for _, c := range exception.Classes() {
		m.errorCounts[c] = new(uint64)
	}
	return m
}

// ObserveEvent counts an inbound event and tracks its transit latency when
// both timestamps are present.
func (m *Metrics) ObserveEvent(header schema.EventHeader) {
	if m == nil {
		return
	}
	idx := int(header.Type)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
	if header.TsEvent > 0 && header.TsRecv > 0 {
		delta := header.TsRecv - header.TsEvent
		if delta >= 0 {
			m.eventLatency.Observe(time.Duration(delta))
		}
	}
}

// ObserveTransition counts an applied order event.
func (m *Metrics) ObserveTransition(kind schema.OrderEventKind, changed bool) {
	if m == nil {
		return
	}
	if kind.Valid() {
		atomic.AddUint64(&m.orderKindCounts[kind], 1)
	}
	if changed {
		atomic.AddUint64(&m.transitions, 1)
	} else {
		atomic.AddUint64(&m.duplicates, 1)
	}
}

// IncError counts an error under its taxonomy class.
func (m *Metrics) IncError(err error) {
	if m == nil || err == nil {
		return
	}
	class := exception.Classify(err)
	if c, ok := m.errorCounts[class]; ok {
		atomic.AddUint64(c, 1)
	}
	switch class {
	case exception.ClassHedgeEscalation:
		atomic.AddUint64(&m.escalations, 1)
	case exception.ClassSchedulerAction:
		atomic.AddUint64(&m.actionFailures, 1)
	}
}

// IncActionFailure counts a failed scheduled action regardless of its class.
func (m *Metrics) IncActionFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.actionFailures, 1)
}

// IncRiskReason increments the risk reason counter.
func (m *Metrics) IncRiskReason(reason risk.Reason) {
	if m == nil {
		return
	}
	if reason < risk.ReasonCount {
		atomic.AddUint64(&m.riskReasonCounts[reason], 1)
	}
}

func (m *Metrics) IncOrderSubmitted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersSubmitted, 1)
}

// IncQueueDrop records a queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// ObserveOrderFlow measures submit to complete latency of one order.
func (m *Metrics) ObserveOrderFlow(d time.Duration) {
	if m == nil {
		return
	}
	m.orderFlowLatency.Observe(d)
}

// ObserveRiskEval measures risk evaluation latency.
func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m == nil {
		return
	}
	m.riskEvalLatency.Observe(d)
}

// ObserveDispatch measures how long one session event took to handle.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventType(i)] = v
		}
	}
	kindCounts := make(map[schema.OrderEventKind]uint64)
	for i := range m.orderKindCounts {
		if v := atomic.LoadUint64(&m.orderKindCounts[i]); v > 0 {
			kindCounts[schema.OrderEventKind(i)] = v
		}
	}
	riskCounts := make(map[risk.Reason]uint64)
	for i := range m.riskReasonCounts {
		if v := atomic.LoadUint64(&m.riskReasonCounts[i]); v > 0 {
			riskCounts[risk.Reason(i)] = v
		}
	}
	errorCounts := make(map[exception.Class]uint64)
	for class, c := range m.errorCounts {
		if v := atomic.LoadUint64(c); v > 0 {
			errorCounts[class] = v
		}
	}
	return Snapshot{
		EventCounts:      eventCounts,
		OrderKindCounts:  kindCounts,
		RiskReasonCounts: riskCounts,
		ErrorCounts:      errorCounts,
		OrdersSubmitted:  atomic.LoadUint64(&m.ordersSubmitted),
		Transitions:      atomic.LoadUint64(&m.transitions),
		Duplicates:       atomic.LoadUint64(&m.duplicates),
		ActionFailures:   atomic.LoadUint64(&m.actionFailures),
		Escalations:      atomic.LoadUint64(&m.escalations),
		QueueDrops:       atomic.LoadUint64(&m.queueDrops),
		QueueClosed:      atomic.LoadUint64(&m.queueClosed),
		EventLatency:     m.eventLatency.Snapshot(),
		OrderFlowLatency: m.orderFlowLatency.Snapshot(),
		RiskEvalLatency:  m.riskEvalLatency.Snapshot(),
		DispatchLatency:  m.dispatchLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		lo := atomic.LoadUint64(&l.min)
		if lo != 0 && nanos >= lo {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, lo, nanos) {
			break
		}
	}

	for {
		hi := atomic.LoadUint64(&l.max)
		if nanos <= hi {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, hi, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(atomic.LoadUint64(&l.sum) / count),
	}
}
