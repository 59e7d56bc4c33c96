// Package metrics exposes prometheus collectors for the chat service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "practice_chat"

type Metrics struct {
	registry *prometheus.Registry

	chatTurns          *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	sessionsRecreated  prometheus.Counter
	cleanupRuns        *prometheus.CounterVec
	cleanupDeleted     prometheus.Counter
	httpRequests       *prometheus.CounterVec
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by resolved model and outcome.",
		}, []string{"model", "outcome"}),
		completionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Latency of completion provider calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"model"}),
		sessionsRecreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_recreated_total",
			Help:      "Sessions created because the requested one was missing or expired.",
		}),
		cleanupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_runs_total",
			Help:      "Expired-session sweeps by job and outcome.",
		}, []string{"job", "outcome"}),
		cleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_deleted_sessions_total",
			Help:      "Sessions removed by sweeps.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
	}

	m.registry.MustRegister(
		m.chatTurns,
		m.completionDuration,
		m.sessionsRecreated,
		m.cleanupRuns,
		m.cleanupDeleted,
		m.httpRequests,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the text exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ChatTurn(model, outcome string) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(model, outcome).Inc()
}

func (m *Metrics) CompletionLatency(model string, d time.Duration) {
	if m == nil {
		return
	}
	m.completionDuration.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) SessionRecreated() {
	if m == nil {
		return
	}
	m.sessionsRecreated.Inc()
}

func (m *Metrics) CleanupRun(job string, deleted int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.cleanupRuns.WithLabelValues(job, "error").Inc()
		return
	}
	m.cleanupRuns.WithLabelValues(job, "ok").Inc()
	m.cleanupDeleted.Add(float64(deleted))
}

func (m *Metrics) HTTPRequest(method string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
