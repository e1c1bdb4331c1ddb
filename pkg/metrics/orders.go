package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts lifecycle events.
type OrderMetrics struct {
	events *prometheus.CounterVec
}

// NewOrderMetrics registers the order lifecycle counters.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_events_total",
		Help:      "Order lifecycle operations by event and outcome.",
	}, []string{"event", "result"})
	reg.MustRegister(events)
	return &OrderMetrics{events: events}
}

// Observe increments the counter for an event; err decides the result label.
func (m *OrderMetrics) Observe(event string, err error) {
	if m == nil || m.events == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.events.WithLabelValues(event, result).Inc()
}
