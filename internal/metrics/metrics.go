// Package metrics holds the prometheus collectors for client calls and the
// dev node. Collectors live in a private registry so tests and multiple
// clients in one process never collide on the default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Registry groups every collector. A nil *Registry is valid and records
// nothing.
type Registry struct {
	registry *prometheus.Registry

	AttemptsTotal   *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	CallsTotal      *prometheus.CounterVec
	CallAttempts    *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
}

// NewRegistry creates a registry with all collectors registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.initClientMetrics()
	r.initServerMetrics()
	return r
}

func (r *Registry) initClientMetrics() {
	r.AttemptsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvclient_endpoint_attempts_total",
			Help: "Requests sent to a single cluster endpoint",
		},
		[]string{"endpoint", "outcome"},
	)

	r.AttemptDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvclient_endpoint_attempt_duration_seconds",
			Help:    "Duration of a single endpoint attempt",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"endpoint"},
	)

	r.CallsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvclient_calls_total",
			Help: "Logical client calls, after failing over across endpoints",
		},
		[]string{"operation", "outcome"},
	)

	r.CallAttempts = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvclient_call_failed_attempts",
			Help:    "Endpoints that failed before a logical call finished",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		},
		[]string{"operation"},
	)
}

func (r *Registry) initServerMetrics() {
	r.RequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvnode_http_requests_total",
			Help: "HTTP requests served by the dev node",
		},
		[]string{"route", "method", "code"},
	)
}

// Gatherer exposes the registry for promhttp.HandlerFor.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveAttempt records one endpoint attempt.
func (r *Registry) ObserveAttempt(endpoint, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.AttemptsTotal.WithLabelValues(endpoint, outcome).Inc()
	r.AttemptDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveCall records the end of a logical call and how many endpoints
// failed along the way.
func (r *Registry) ObserveCall(operation, outcome string, failedAttempts int) {
	if r == nil {
		return
	}
	r.CallsTotal.WithLabelValues(operation, outcome).Inc()
	r.CallAttempts.WithLabelValues(operation).Observe(float64(failedAttempts))
}

// ObserveRequest records one request served by the dev node.
func (r *Registry) ObserveRequest(route, method, code string) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(route, method, code).Inc()
}
