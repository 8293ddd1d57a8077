package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every recording method is safe to
// call on a nil *Metrics, which lets library code run without a registry.
type Metrics struct {
	// HTTP metrics (ops surface)
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Snapshot recompute metrics
	RecomputesTotal   *prometheus.CounterVec
	RecomputeDuration prometheus.Histogram

	// Scheduler metrics
	PassesTotal   *prometheus.CounterVec
	PassDuration  prometheus.Histogram
	PassUsers     *prometheus.CounterVec
	LastPassUnix  prometheus.Gauge
	SchedulerUp   prometheus.Gauge
	CleanupDelete prometheus.Counter

	// Queue metrics
	QueueJobsTotal *prometheus.CounterVec
	QueueDepth     prometheus.Gauge

	// Dashboard facade metrics
	AggregateFailures *prometheus.CounterVec
	BundleCacheTotal  *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitCount        prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "internhub_http_requests_total",
				Help: "Total number of ops HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "internhub_http_request_duration_seconds",
				Help:    "Ops HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		RecomputesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "internhub_analytics_recomputes_total",
				Help: "Total number of per-user snapshot recomputes",
			},
			[]string{"status"},
		),
		RecomputeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "internhub_analytics_recompute_duration_seconds",
				Help:    "Duration of one per-user snapshot recompute",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),

		PassesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "internhub_analytics_passes_total",
				Help: "Total number of scheduler full passes",
			},
			[]string{"status"},
		),
		PassDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "internhub_analytics_pass_duration_seconds",
				Help:    "Duration of a scheduler full pass",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
		),
		PassUsers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "internhub_analytics_pass_users_total",
				Help: "Users processed by scheduler passes",
			},
			[]string{"outcome"},
		),
		LastPassUnix: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "internhub_analytics_last_pass_timestamp_seconds",
				Help: "Unix time the last full pass finished",
			},
		),
		SchedulerUp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "internhub_analytics_scheduler_running",
				Help: "1 when the analytics scheduler is running",
			},
		),
		CleanupDelete: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "internhub_analytics_cleanup_deleted_rows_total",
				Help: "Credit ledger rows deleted by retention cleanup",
			},
		),

		QueueJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "internhub_analytics_queue_jobs_total",
				Help: "Recompute jobs by outcome",
			},
			[]string{"outcome"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "internhub_analytics_queue_depth",
				Help: "Pending recompute jobs",
			},
		),

		AggregateFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "internhub_analytics_aggregate_failures_total",
				Help: "Dashboard aggregate failures by field",
			},
			[]string{"field"},
		),
		BundleCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "internhub_analytics_bundle_cache_total",
				Help: "Dashboard bundle cache lookups by result",
			},
			[]string{"result"},
		),

		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "internhub_db_connections_open",
				Help: "Open database connections",
			},
		),
		DBConnectionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "internhub_db_connections_in_use",
				Help: "Database connections in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "internhub_db_connections_idle",
				Help: "Idle database connections",
			},
		),
		DBWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "internhub_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RecomputesTotal,
		m.RecomputeDuration,
		m.PassesTotal,
		m.PassDuration,
		m.PassUsers,
		m.LastPassUnix,
		m.SchedulerUp,
		m.CleanupDelete,
		m.QueueJobsTotal,
		m.QueueDepth,
		m.AggregateFailures,
		m.BundleCacheTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBWaitCount,
	)

	return m
}

// ObserveRecompute records one snapshot recompute.
func (m *Metrics) ObserveRecompute(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RecomputesTotal.WithLabelValues(status).Inc()
	m.RecomputeDuration.Observe(d.Seconds())
}

// ObservePass records a finished scheduler pass.
func (m *Metrics) ObservePass(status string, d time.Duration, succeeded, failed int) {
	if m == nil {
		return
	}
	m.PassesTotal.WithLabelValues(status).Inc()
	m.PassDuration.Observe(d.Seconds())
	m.PassUsers.WithLabelValues("succeeded").Add(float64(succeeded))
	m.PassUsers.WithLabelValues("failed").Add(float64(failed))
	m.LastPassUnix.SetToCurrentTime()
}

// SetSchedulerRunning flips the scheduler gauge.
func (m *Metrics) SetSchedulerRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.SchedulerUp.Set(1)
	} else {
		m.SchedulerUp.Set(0)
	}
}

// AddCleanupDeleted counts ledger rows removed by retention cleanup.
func (m *Metrics) AddCleanupDeleted(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.CleanupDelete.Add(float64(n))
}

// IncQueueJob counts a queue job outcome (enqueued, succeeded, retried, dropped).
func (m *Metrics) IncQueueJob(outcome string) {
	if m == nil {
		return
	}
	m.QueueJobsTotal.WithLabelValues(outcome).Inc()
}

// SetQueueDepth records the pending job count.
func (m *Metrics) SetQueueDepth(n int64) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// IncAggregateFailure counts a failed dashboard field.
func (m *Metrics) IncAggregateFailure(field string) {
	if m == nil {
		return
	}
	m.AggregateFailures.WithLabelValues(field).Inc()
}

// IncBundleCache counts a dashboard cache hit or miss.
func (m *Metrics) IncBundleCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.BundleCacheTotal.WithLabelValues(result).Inc()
}

// UpdateDBStats copies connection pool statistics into the gauges.
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBWaitCount.Set(float64(stats.WaitCount))
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
// pathLabel maps a request to a low-cardinality label (usually the route template).
func HTTPMetricsMiddleware(metrics *Metrics, pathLabel func(*http.Request) string) func(http.Handler) http.Handler {
	if pathLabel == nil {
		pathLabel = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := pathLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
