package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rejection stages reported by the security pipeline.
const (
	StagePayloadSize  = "payload_size"
	StageUserAgent    = "user_agent"
	StageMalformed    = "malformed_body"
	StageMediaType    = "unsupported_media_type"
	StageSQLInjection = "sql_injection"
	StageRateLimit    = "rate_limit"
	StageLoginLimit   = "login_rate_limit"
	StageThrottle     = "login_throttle"
	StageRole         = "insufficient_role"
)

// Metrics holds the security counters exported on /metrics.
type Metrics struct {
	registry         *prometheus.Registry
	Rejections       *prometheus.CounterVec
	LoginAttempts    *prometheus.CounterVec
	SuspiciousAgents prometheus.Counter
}

// New registers the counters on a fresh registry together with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finboard",
			Name:      "security_rejections_total",
			Help:      "Requests rejected by the security pipeline, by stage.",
		}, []string{"stage"}),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finboard",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		SuspiciousAgents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "finboard",
			Name:      "suspicious_user_agents_total",
			Help:      "Requests whose user agent matched a scanner or bot pattern.",
		}),
	}
	reg.MustRegister(
		m.Rejections,
		m.LoginAttempts,
		m.SuspiciousAgents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Reject counts a rejection at the given stage. Safe on a nil receiver.
func (m *Metrics) Reject(stage string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(stage).Inc()
}

// Login counts a login outcome. Safe on a nil receiver.
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// Suspicious counts a flagged user agent. Safe on a nil receiver.
func (m *Metrics) Suspicious() {
	if m == nil {
		return
	}
	m.SuspiciousAgents.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
