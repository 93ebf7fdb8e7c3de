package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the response consumers and the stuck-document sweep
// of the worker process.
type WorkerMetrics struct {
	registry *prometheus.Registry

	responsesTotal   *prometheus.CounterVec
	responseDuration *prometheus.HistogramVec
	responseInFlight *prometheus.GaugeVec
	sweptTotal       *prometheus.CounterVec
	breakerOpen      *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	responsesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperless",
			Subsystem: "worker",
			Name:      "responses_total",
			Help:      "Total worker responses handled by stage and outcome.",
		},
		[]string{"service", "stage", "outcome"},
	)
	responseDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paperless",
			Subsystem: "worker",
			Name:      "response_duration_seconds",
			Help:      "Worker response handling duration in seconds by stage.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	responseInFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "paperless",
			Subsystem: "worker",
			Name:      "responses_in_flight",
			Help:      "Number of worker responses being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"stage"},
	)
	sweptTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperless",
			Subsystem: "worker",
			Name:      "stuck_documents_failed_total",
			Help:      "Total documents failed by the stuck-document sweep.",
		},
		[]string{"service"},
	)

	breakerOpen := newBreakerGauge(service)

	registry.MustRegister(responsesTotal, responseDuration, responseInFlight, sweptTotal, breakerOpen)

	return &WorkerMetrics{
		registry:         registry,
		responsesTotal:   responsesTotal,
		responseDuration: responseDuration,
		responseInFlight: responseInFlight,
		sweptTotal:       sweptTotal,
		breakerOpen:      breakerOpen,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartResponse(stage string) {
	m.responseInFlight.WithLabelValues(stage).Inc()
}

func (m *WorkerMetrics) FinishResponse(service, stage, outcome string, duration time.Duration) {
	m.responseInFlight.WithLabelValues(stage).Dec()
	if outcome == "" {
		outcome = "unknown"
	}
	m.responsesTotal.WithLabelValues(service, stage, outcome).Inc()
	m.responseDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

func (m *WorkerMetrics) RecordSweep(service string, failed int) {
	if failed <= 0 {
		return
	}
	m.sweptTotal.WithLabelValues(service).Add(float64(failed))
}
