package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// Reserve outcomes.
const (
	ReserveSuccess    = "success"
	ReserveOutOfStock = "out_of_stock"
	ReserveError      = "error"
)

// InventoryMetrics tracks ledger traffic and audit findings.
type InventoryMetrics struct {
	reservations *prometheus.CounterVec
	unitsDrawn   prometheus.Counter
	releases     *prometheus.CounterVec
	unitsCredit  prometheus.Counter
	duration     prometheus.Histogram
	violations   prometheus.Gauge
}

// NewInventoryMetrics registers the ledger metrics on the provided registerer.
// A nil registerer yields a no-op collector.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	m := &InventoryMetrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Reserve calls by outcome.",
		}, []string{"result"}),
		unitsDrawn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reserved_units_total",
			Help:      "Units drawn from inventory levels.",
		}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "releases_total",
			Help:      "Release calls by outcome (released or noop).",
		}, []string{"result"}),
		unitsCredit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "released_units_total",
			Help:      "Units credited back to inventory levels.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reserve_duration_seconds",
			Help:      "Latency of reserve transactions.",
			Buckets:   prometheus.DefBuckets,
		}),
		violations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inventory_conservation_violations",
			Help:      "Variants failing the conservation audit on the last run.",
		}),
	}
	reg.MustRegister(m.reservations, m.unitsDrawn, m.releases, m.unitsCredit, m.duration, m.violations)
	return m
}

// ObserveReserve records a reserve call and, on success, the units it drew.
func (m *InventoryMetrics) ObserveReserve(result string, units int, took time.Duration) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(result).Inc()
	m.duration.Observe(took.Seconds())
	if result == ReserveSuccess && units > 0 {
		m.unitsDrawn.Add(float64(units))
	}
}

// ObserveRelease records a release call. Units are only counted when stock actually moved.
func (m *InventoryMetrics) ObserveRelease(released bool, units int) {
	if m == nil || m.releases == nil {
		return
	}
	if !released {
		m.releases.WithLabelValues("noop").Inc()
		return
	}
	m.releases.WithLabelValues("released").Inc()
	if units > 0 {
		m.unitsCredit.Add(float64(units))
	}
}

// SetViolations publishes the number of variants failing the last audit.
func (m *InventoryMetrics) SetViolations(count int) {
	if m == nil || m.violations == nil {
		return
	}
	m.violations.Set(float64(count))
}
