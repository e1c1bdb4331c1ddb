package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox relay outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics counts relay outcomes per event type and times each claimed batch.
type OutboxMetrics struct {
	events    *prometheus.CounterVec
	batchRows prometheus.Histogram
	batchTook prometheus.Histogram
}

// NewOutboxMetrics registers the outbox relay collectors.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox rows handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		batchRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_batch_rows",
			Help:      "Rows claimed per non-empty publish batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		batchTook: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_batch_duration_seconds",
			Help:      "Time to claim, publish and settle one non-empty batch.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.events, m.batchRows, m.batchTook)
	return m
}

// Inc records one outcome for eventType.
func (m *OutboxMetrics) Inc(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

// ObserveBatch ignores empty polls so idle time does not drag the histograms down.
func (m *OutboxMetrics) ObserveBatch(rows int, took time.Duration) {
	if m == nil || m.batchRows == nil || rows == 0 {
		return
	}
	m.batchRows.Observe(float64(rows))
	m.batchTook.Observe(took.Seconds())
}
