package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	registry *prometheus.Registry

	// Token metrics
	TokensIssued   *prometheus.CounterVec
	TokensConsumed *prometheus.CounterVec
	TokensReaped   prometheus.Counter

	// Workflow metrics
	AccountTransitions    *prometheus.CounterVec
	AssignmentTransitions *prometheus.CounterVec
	Notifications         *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// New creates all application metrics on a private registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Total number of tokens issued",
		}, []string{"kind"}),
		TokensConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_consumed_total",
			Help:      "Token redemption attempts by outcome",
		}, []string{"kind", "result"}),
		TokensReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_reaped_total",
			Help:      "Total number of expired tokens deleted by the reaper",
		}),
		AccountTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_transitions_total",
			Help:      "Account lifecycle transitions",
		}, []string{"transition"}),
		AssignmentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_transitions_total",
			Help:      "Doctor request transitions",
		}, []string{"status"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Emails attempted by template and outcome",
		}, []string{"template", "status"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TokensIssued,
		m.TokensConsumed,
		m.TokensReaped,
		m.AccountTransitions,
		m.AssignmentTransitions,
		m.Notifications,
		m.HTTPRequests,
		m.HTTPLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The helpers below accept a nil receiver so callers without metrics need
// no guard.

func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) TokenConsumed(kind, result string) {
	if m == nil {
		return
	}
	m.TokensConsumed.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Reaped(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensReaped.Add(float64(n))
}

func (m *Metrics) AccountTransition(transition string) {
	if m == nil {
		return
	}
	m.AccountTransitions.WithLabelValues(transition).Inc()
}

func (m *Metrics) AssignmentTransition(status string) {
	if m == nil {
		return
	}
	m.AssignmentTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) Notification(template string, sent bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !sent {
		status = "failed"
	}
	m.Notifications.WithLabelValues(template, status).Inc()
}
