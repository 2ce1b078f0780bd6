package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics exposes the relay's operational surface: how much has been
// delivered, how much has been quarantined, and how far behind the relay is.
type OutboxMetrics struct {
	published  prometheus.Counter
	deadLetter prometheus.Counter
	stale      prometheus.Gauge
	cycle      prometheus.Histogram
}

// NewOutboxMetrics registers the outbox metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_outbox_published_total",
		Help: "Audit events successfully published to the broker.",
	})
	deadLetter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_outbox_dead_letter_total",
		Help: "Audit events moved to the dead-letter store after exhausting retries.",
	})
	stale := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audit_outbox_stale_pending",
		Help: "Pending/failed outbox records older than the staleness threshold.",
	})
	cycle := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "audit_outbox_cycle_duration_seconds",
		Help:    "Duration of relay cycles in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(published, deadLetter, stale, cycle)
	return &OutboxMetrics{
		published:  published,
		deadLetter: deadLetter,
		stale:      stale,
		cycle:      cycle,
	}
}

// IncPublished increments the published counter.
func (m *OutboxMetrics) IncPublished() {
	if m == nil || m.published == nil {
		return
	}
	m.published.Inc()
}

// IncDeadLetter increments the dead-letter counter.
func (m *OutboxMetrics) IncDeadLetter() {
	if m == nil || m.deadLetter == nil {
		return
	}
	m.deadLetter.Inc()
}

// SetStaleBacklog records the current stale backlog size.
func (m *OutboxMetrics) SetStaleBacklog(count int64) {
	if m == nil || m.stale == nil {
		return
	}
	m.stale.Set(float64(count))
}

// ObserveCycleDuration records how long a relay cycle took.
func (m *OutboxMetrics) ObserveCycleDuration(duration time.Duration) {
	if m == nil || m.cycle == nil {
		return
	}
	m.cycle.Observe(duration.Seconds())
}
