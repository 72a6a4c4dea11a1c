package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Decision verdict labels
const (
	VerdictAllow = "allow"
	VerdictDeny  = "deny"
	VerdictError = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access decision metrics
	DecisionsTotal   *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Escalation metrics
	EscalationsIssuedTotal  prometheus.Counter
	EscalationsRevokedTotal prometheus.Counter

	// Audit metrics
	AuditRecordsTotal *prometheus.CounterVec
	AuditDroppedTotal prometheus.Counter

	// Background jobs
	PlanReloadsTotal   *prometheus.CounterVec
	ReconcileRunsTotal *prometheus.CounterVec
	CounterDriftTotal  prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_access_decisions_total",
				Help: "Access decisions by enforcement stage, verdict and machine code",
			},
			[]string{"stage", "verdict", "code"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_access_decision_duration_seconds",
				Help:    "Time spent in each enforcement stage",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
			},
			[]string{"stage"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache", "layer"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache", "layer"},
		),

		EscalationsIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_escalations_issued_total",
				Help: "Assumed-tenant escalations issued to super admins",
			},
		),
		EscalationsRevokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_escalations_revoked_total",
				Help: "Assumed-tenant escalations revoked before expiry",
			},
		),

		AuditRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_audit_records_total",
				Help: "Audit records written per sink and outcome",
			},
			[]string{"sink", "status"},
		),
		AuditDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_audit_dropped_total",
				Help: "Audit records dropped because the queue was full",
			},
		),

		PlanReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_plan_catalog_reloads_total",
				Help: "Plan catalog reload attempts",
			},
			[]string{"status"},
		),
		ReconcileRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_counter_reconcile_runs_total",
				Help: "Cached counter reconciliation runs",
			},
			[]string{"status"},
		),
		CounterDriftTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_counter_drift_corrections_total",
				Help: "Cached tenant counters corrected by reconciliation",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.DecisionDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EscalationsIssuedTotal,
		m.EscalationsRevokedTotal,
		m.AuditRecordsTotal,
		m.AuditDroppedTotal,
		m.PlanReloadsTotal,
		m.ReconcileRunsTotal,
		m.CounterDriftTotal,
	)

	return m
}

// ObserveDecision records the outcome of one enforcement stage. Safe on a nil receiver.
func (m *Metrics) ObserveDecision(stage, verdict, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(stage, verdict, code).Inc()
	m.DecisionDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// CacheHit records a cache hit. Safe on a nil receiver.
func (m *Metrics) CacheHit(cache, layer string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache, layer).Inc()
}

// CacheMiss records a cache miss. Safe on a nil receiver.
func (m *Metrics) CacheMiss(cache, layer string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache, layer).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// routeName maps a request to a low-cardinality label (usually the mux path template).
func HTTPMetricsMiddleware(metrics *Metrics, routeName func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if routeName != nil {
				route = routeName(r)
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
