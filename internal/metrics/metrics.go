// Package metrics owns Stride's Prometheus collectors. They live on a private
// registry served at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AuditWriteFailures prometheus.Counter
	ActionsTotal       *prometheus.CounterVec
	AIRequestsTotal    *prometheus.CounterVec

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	JobRunsTotal *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		Registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stride_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stride_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuditWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stride_audit_write_failures_total",
				Help: "Audit entries that could not be persisted",
			},
		),
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stride_actions_total",
				Help: "Mutation actions by outcome",
			},
			[]string{"action", "outcome"},
		),
		AIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stride_ai_requests_total",
				Help: "Completion provider calls by feature and outcome",
			},
			[]string{"feature", "outcome"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stride_view_cache_hits_total",
				Help: "View cache hits",
			},
			[]string{"view"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stride_view_cache_misses_total",
				Help: "View cache misses",
			},
			[]string{"view"},
		),
		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stride_worker_job_runs_total",
				Help: "Scheduled worker job runs by outcome",
			},
			[]string{"job", "outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuditWriteFailures,
		m.ActionsTotal,
		m.AIRequestsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.JobRunsTotal,
	)
	return m
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) Action(action, outcome string) {
	m.ActionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) AIRequest(feature, outcome string) {
	m.AIRequestsTotal.WithLabelValues(feature, outcome).Inc()
}

func (m *Metrics) Job(job string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.JobRunsTotal.WithLabelValues(job, outcome).Inc()
}
