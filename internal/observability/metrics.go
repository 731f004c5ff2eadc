// File: internal/observability/metrics.go
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for task execution and gateway calls.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	tasksInProgress prometheus.Gauge

	gatewayRequests *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry under namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Tasks that reached a terminal status.",
			},
			[]string{"type", "status"},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Wall-clock time spent executing a task.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"type"},
		),
		tasksInProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tasks_in_progress",
				Help:      "Tasks currently executing.",
			},
		),
		gatewayRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Calls made to the inference and perception services.",
			},
			[]string{"service", "operation", "outcome"},
		),
		gatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_request_duration_seconds",
				Help:      "Latency of inference and perception calls.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"service", "operation"},
		),
	}
}

// TaskStarted marks a task as executing.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.tasksInProgress.Inc()
}

// TaskFinished records a terminal outcome and its duration.
func (m *Metrics) TaskFinished(taskType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tasksInProgress.Dec()
	m.tasksTotal.WithLabelValues(taskType, status).Inc()
	m.taskDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
}

// ObserveGateway records one call to an external service.
func (m *Metrics) ObserveGateway(service, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.gatewayRequests.WithLabelValues(service, operation, outcome).Inc()
	m.gatewayDuration.WithLabelValues(service, operation).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
