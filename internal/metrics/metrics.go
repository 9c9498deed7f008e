// Package metrics exposes Prometheus counters for privacy decisions.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "messagestack"

type Metrics struct {
	registry *prometheus.Registry

	consentChecks *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	aiRecords     prometheus.Counter
	sweeps        *prometheus.CounterVec
}

// New registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		consentChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consent_checks_total",
			Help:      "Consent checks by outcome.",
		}, []string{"outcome"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "survey_submissions_total",
			Help:      "Survey submissions by result.",
		}, []string{"result"}),
		aiRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_records_created_total",
			Help:      "Anonymized AI records stored.",
		}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Rows removed by retention sweeps, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		m.consentChecks,
		m.submissions,
		m.aiRecords,
		m.sweeps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ConsentChecked counts a consent decision. outcome is "allowed" or a denial reason.
func (m *Metrics) ConsentChecked(outcome string) {
	if m == nil {
		return
	}
	m.consentChecks.WithLabelValues(outcome).Inc()
}

// Submission counts a submission attempt. result is "accepted" or "rejected".
func (m *Metrics) Submission(result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) AIRecordCreated() {
	if m == nil {
		return
	}
	m.aiRecords.Inc()
}

// Swept adds n deleted rows of the given kind.
func (m *Metrics) Swept(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweeps.WithLabelValues(kind).Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
