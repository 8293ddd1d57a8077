package observability

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	m.ObserveRecompute("success", 10*time.Millisecond)
	m.ObservePass("success", 2*time.Second, 9, 1)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["internhub_analytics_recomputes_total"])
	assert.True(t, names["internhub_analytics_pass_users_total"])
	assert.True(t, names["internhub_analytics_scheduler_running"])
}

func TestMetrics_Recording(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveRecompute("error", time.Millisecond)
	m.ObserveRecompute("error", time.Millisecond)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecomputesTotal.WithLabelValues("error")))

	m.ObservePass("success", time.Second, 7, 3)
	assert.Equal(t, float64(7), testutil.ToFloat64(m.PassUsers.WithLabelValues("succeeded")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.PassUsers.WithLabelValues("failed")))

	m.SetSchedulerRunning(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SchedulerUp))
	m.SetSchedulerRunning(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.SchedulerUp))

	m.AddCleanupDeleted(5)
	m.AddCleanupDeleted(0)
	assert.Equal(t, float64(5), testutil.ToFloat64(m.CleanupDelete))

	m.IncQueueJob("retried")
	m.SetQueueDepth(12)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QueueJobsTotal.WithLabelValues("retried")))
	assert.Equal(t, float64(12), testutil.ToFloat64(m.QueueDepth))

	m.IncAggregateFailure("overview")
	m.IncBundleCache(true)
	m.IncBundleCache(false)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AggregateFailures.WithLabelValues("overview")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BundleCacheTotal.WithLabelValues("hit")))

	m.UpdateDBStats(sql.DBStats{OpenConnections: 4, InUse: 3, Idle: 1, WaitCount: 9})
	assert.Equal(t, float64(4), testutil.ToFloat64(m.DBConnectionsOpen))
	assert.Equal(t, float64(9), testutil.ToFloat64(m.DBWaitCount))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRecompute("success", time.Second)
		m.ObservePass("success", time.Second, 1, 0)
		m.SetSchedulerRunning(true)
		m.AddCleanupDeleted(1)
		m.IncQueueJob("enqueued")
		m.SetQueueDepth(1)
		m.IncAggregateFailure("overview")
		m.IncBundleCache(true)
		m.UpdateDBStats(sql.DBStats{})
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	handler := HTTPMetricsMiddleware(m, func(*http.Request) string { return "/fixed" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/anything/123", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/fixed", "202")))
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.ObserveRecompute("success", time.Millisecond)

	server := httptest.NewServer(MetricsHandler(registry))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "internhub_analytics_recomputes_total"))
}
