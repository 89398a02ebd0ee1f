package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names.
const (
	MetricSubmissionsTotal       = "entry_submissions_total"
	MetricSettlementsTotal       = "entry_settlements_total"
	MetricBackendDurationSeconds = "entry_backend_request_duration_seconds"
	MetricGuardChecksTotal       = "entry_guard_checks_total"
)

// Metrics holds the client's Prometheus collectors on a private registry.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Metrics struct {
	registry *prometheus.Registry

	submissions     *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	guardChecks     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them together with the Go and
// process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSubmissionsTotal,
			Help: "Form submissions by operation kind and outcome.",
		}, []string{"kind", "outcome"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSettlementsTotal,
			Help: "Invoice settlement attempts by outcome.",
		}, []string{"outcome"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricBackendDurationSeconds,
			Help:    "Backend request duration by endpoint and status code.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint", "status"}),
		guardChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricGuardChecksTotal,
			Help: "Session validity checks by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.submissions,
		m.settlements,
		m.backendDuration,
		m.guardChecks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordSubmission counts a submission attempt.
func (m *Metrics) RecordSubmission(kind, outcome string) {
	m.submissions.WithLabelValues(kind, outcome).Inc()
}

// RecordSettlement counts a settlement attempt.
func (m *Metrics) RecordSettlement(outcome string) {
	m.settlements.WithLabelValues(outcome).Inc()
}

// RecordGuardCheck counts a session check.
func (m *Metrics) RecordGuardCheck(result string) {
	m.guardChecks.WithLabelValues(result).Inc()
}

// ObserveBackend records one backend round trip. Status 0 means a transport failure.
func (m *Metrics) ObserveBackend(endpoint string, status int, d time.Duration) {
	label := strconv.Itoa(status)
	if status == 0 {
		label = "error"
	}
	m.backendDuration.WithLabelValues(endpoint, label).Observe(d.Seconds())
}
