package metrics

import "github.com/prometheus/client_golang/prometheus"

func newBreakerGauge(service string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "paperless",
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker for an operation is open, 0.5 while half-open, 0 when closed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"operation"},
	)
}

func breakerValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half-open":
		return 0.5
	default:
		return 0
	}
}

// ObserveBreaker records a breaker transition reported by the resilience executor.
func (m *HTTPServerMetrics) ObserveBreaker(operation, state string) {
	m.breakerOpen.WithLabelValues(operation).Set(breakerValue(state))
}

// ObserveBreaker records a breaker transition reported by the resilience executor.
func (m *WorkerMetrics) ObserveBreaker(operation, state string) {
	m.breakerOpen.WithLabelValues(operation).Set(breakerValue(state))
}
