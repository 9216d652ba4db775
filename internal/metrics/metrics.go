// Package metrics exposes Prometheus instrumentation for the dispatcher.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gfc/internal/admission"
)

var durationBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 300}

// Metrics holds the dispatcher's collectors on a private registry so tests
// can create instances freely.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	buildsTotal     *prometheus.CounterVec
}

// New registers the collectors. The admission gate is observed through gauge
// functions rather than counted separately, so the metric can never drift
// from the real counter.
func New(gate *admission.Gate) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gfc",
		Name:      "http_requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "status"})

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gfc",
		Name:      "http_request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   durationBuckets,
	}, []string{"method", "status"})

	m.buildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gfc",
		Name:      "builds_total",
		Help:      "Number of build outcomes by status",
	}, []string{"status"})

	inFlight := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gfc",
		Name:      "builds_in_flight",
		Help:      "Currently admitted builds",
	}, func() float64 { return float64(gate.InFlight()) })

	capacity := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gfc",
		Name:      "builds_capacity",
		Help:      "Maximum concurrent builds",
	}, func() float64 { return float64(gate.Capacity()) })

	m.registry.MustRegister(m.requestsTotal, m.requestDuration, m.buildsTotal, inFlight, capacity)
	return m
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method string, status int, duration time.Duration) {
	labels := prometheus.Labels{"method": method, "status": strconv.Itoa(status)}
	m.requestsTotal.With(labels).Inc()
	m.requestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveBuild records one build outcome by status name.
func (m *Metrics) ObserveBuild(status string) {
	m.buildsTotal.With(prometheus.Labels{"status": status}).Inc()
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
