// Package observability exposes Prometheus metrics for the HTTP layer and the
// scheduling engine. Every Metrics owns its registry, so several instances
// (one per test server) never collide.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	fixedSubmissions  *prometheus.CounterVec
	blocksWritten     *prometheus.CounterVec
	cascadeRuns       *prometheus.CounterVec
	cascadeBlocks     prometheus.Counter
	utilizationCalls  prometheus.Counter
	utilizationShared prometheus.Counter
	auditFailures     prometheus.Counter
	policySeason      *prometheus.GaugeVec
	overtimeCap       prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		fixedSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_fixed_submissions_total",
			Help: "Fixed-block submissions by outcome (ok or error kind).",
		}, []string{"result"}),
		blocksWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_time_blocks_written_total",
			Help: "Time blocks written by phase (create, update, delete).",
		}, []string{"phase"}),
		cascadeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_cascade_simulations_total",
			Help: "Cascade simulations by outcome (ok or error kind).",
		}, []string{"result"}),
		cascadeBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_cascade_generated_blocks_total",
			Help: "Time blocks proposed by cascade simulations.",
		}),
		utilizationCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_utilization_queries_total",
			Help: "Utilization percentage queries.",
		}),
		utilizationShared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_utilization_shared_total",
			Help: "Utilization queries answered by an in-flight computation.",
		}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_audit_failures_total",
			Help: "Audit entries that could not be written.",
		}),
		policySeason: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_policy_season",
			Help: "1 for the season the working-hours policy currently resolves to.",
		}, []string{"season"}),
		overtimeCap: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_policy_max_daily_overtime_hours",
			Help: "Daily overtime cap of the currently effective policy.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.fixedSubmissions,
		m.blocksWritten,
		m.cascadeRuns,
		m.cascadeBlocks,
		m.utilizationCalls,
		m.utilizationShared,
		m.auditFailures,
		m.policySeason,
		m.overtimeCap,
	)
	return m
}

// Registry is exposed for tests that gather values directly.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Middleware records count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m == nil {
			return
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// =============================================================================
// ENGINE HOOKS - nil-safe so services run without metrics
// =============================================================================

func (m *Metrics) FixedSubmission(result string) {
	if m == nil {
		return
	}
	m.fixedSubmissions.WithLabelValues(result).Inc()
}

func (m *Metrics) BlocksWritten(phase string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.blocksWritten.WithLabelValues(phase).Add(float64(n))
}

func (m *Metrics) CascadeRun(result string, generated int) {
	if m == nil {
		return
	}
	m.cascadeRuns.WithLabelValues(result).Inc()
	m.cascadeBlocks.Add(float64(generated))
}

func (m *Metrics) UtilizationQuery(shared bool) {
	if m == nil {
		return
	}
	m.utilizationCalls.Inc()
	if shared {
		m.utilizationShared.Inc()
	}
}

func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// PolicyResolved publishes the effective season and its overtime cap.
func (m *Metrics) PolicyResolved(season string, overtimeCap float64) {
	if m == nil {
		return
	}
	m.policySeason.Reset()
	m.policySeason.WithLabelValues(season).Set(1)
	m.overtimeCap.Set(overtimeCap)
}
