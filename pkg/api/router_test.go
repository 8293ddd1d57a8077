package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/internhub/internhub/pkg/analytics"
	"github.com/internhub/internhub/pkg/httputil"
	"github.com/internhub/internhub/pkg/middleware"
	"github.com/internhub/internhub/pkg/observability"
)

type fakeDashboard struct {
	bundle *analytics.CompleteAnalytics
}

func (f *fakeDashboard) GetCompleteAnalytics(context.Context) *analytics.CompleteAnalytics {
	return f.bundle
}

type fakeScheduler struct {
	mu       sync.Mutex
	status   analytics.Status
	forced   chan struct{}
	forceErr error
}

func (f *fakeScheduler) Status() analytics.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeScheduler) ForceUpdate(context.Context) (analytics.PassResult, error) {
	close(f.forced)
	return analytics.PassResult{Users: 3, Succeeded: 3}, f.forceErr
}

type fakeUpdater struct {
	updateErr error
	snapshots map[string]*analytics.StudentAnalyticsSnapshot
	readErr   error
	updated   []string
}

func (f *fakeUpdater) UpdateUserAnalytics(_ context.Context, userID string) error {
	f.updated = append(f.updated, userID)
	return f.updateErr
}

func (f *fakeUpdater) GetUserAnalytics(_ context.Context, userID string) (*analytics.StudentAnalyticsSnapshot, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.snapshots[userID], nil
}

// failingRepo fails every read so the facade returns a partial bundle.
type failingRepo struct{}

var errRepoDown = errors.New("database unavailable")

func (failingRepo) Count(context.Context, analytics.Entity, analytics.Filter) (int64, error) {
	return 0, errRepoDown
}
func (failingRepo) CountActiveUsers(context.Context, time.Time) (int64, error) { return 0, errRepoDown }
func (failingRepo) UserExists(context.Context, string) (bool, error)            { return false, errRepoDown }
func (failingRepo) ListUserIDsByRole(context.Context, string) ([]string, error) {
	return nil, errRepoDown
}
func (failingRepo) CountTasksByStatus(context.Context, string) (analytics.TaskCounts, error) {
	return analytics.TaskCounts{}, errRepoDown
}
func (failingRepo) ListSubmissions(context.Context, string) ([]analytics.Submission, error) {
	return nil, errRepoDown
}
func (failingRepo) ListCreditHistory(context.Context, string) ([]analytics.CreditEntry, error) {
	return nil, errRepoDown
}
func (failingRepo) UpsertSnapshot(context.Context, *analytics.StudentAnalyticsSnapshot) (bool, error) {
	return false, errRepoDown
}
func (failingRepo) GetSnapshot(context.Context, string) (*analytics.StudentAnalyticsSnapshot, error) {
	return nil, errRepoDown
}
func (failingRepo) DeleteCreditHistoryBefore(context.Context, time.Time) (int64, error) {
	return 0, errRepoDown
}

type testEnv struct {
	handler   http.Handler
	metrics   *observability.Metrics
	scheduler *fakeScheduler
	updater   *fakeUpdater
}

func newTestEnv(t *testing.T, dashboard Dashboard) *testEnv {
	t.Helper()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	scheduler := &fakeScheduler{forced: make(chan struct{})}
	updater := &fakeUpdater{snapshots: map[string]*analytics.StudentAnalyticsSnapshot{}}

	health := observability.NewHealthChecker("test")
	health.AddCheck("database", true, func(context.Context) error { return nil })

	handler := NewOpsRouter(OpsRouterConfig{
		Health:    health,
		Registry:  registry,
		Metrics:   metrics,
		Logger:    logger,
		Analytics: NewAnalyticsHandlers(dashboard, scheduler, updater, logger),
	})

	return &testEnv{handler: handler, metrics: metrics, scheduler: scheduler, updater: updater}
}

func (e *testEnv) do(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestOpsRouter_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, &fakeDashboard{bundle: &analytics.CompleteAnalytics{}})

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := env.do(http.MethodGet, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := env.do(http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "internhub_http_requests_total")

	// Metrics use the route template, not the raw path.
	env.do(http.MethodGet, "/analytics/users/u-1")
	assert.Equal(t, float64(1),
		testutil.ToFloat64(env.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/analytics/users/{userID}", "404")))
}

func TestOpsRouter_UnknownRoute(t *testing.T) {
	env := newTestEnv(t, &fakeDashboard{bundle: &analytics.CompleteAnalytics{}})
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/nope").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(http.MethodGet, "/analytics/scheduler/force-update").Code)
}

func TestGetDashboard(t *testing.T) {
	bundle := &analytics.CompleteAnalytics{
		Overview:       &analytics.OverviewStats{TotalUsers: 125, UserGrowth: 25},
		CompletionRate: &analytics.CompletionRate{Rate: 40, Completed: 4, Total: 10},
	}
	env := newTestEnv(t, &fakeDashboard{bundle: bundle})

	rec := env.do(http.MethodGet, "/analytics/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Analytics-Partial"))

	var got analytics.CompleteAnalytics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(125), got.Overview.TotalUsers)
	assert.Equal(t, 40.0, got.CompletionRate.Rate)
}

func TestGetDashboard_Partial(t *testing.T) {
	service := analytics.NewService(failingRepo{}, analytics.WithCacheTTL(0))
	env := newTestEnv(t, service)

	rec := env.do(http.MethodGet, "/analytics/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Analytics-Partial"))

	var got analytics.CompleteAnalytics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Contains(t, got.Errors, "overview")
}

func TestSchedulerStatus(t *testing.T) {
	env := newTestEnv(t, &fakeDashboard{})
	env.scheduler.status = analytics.Status{IsRunning: true, HasTimerArmed: true, IntervalMinutes: 5}

	rec := env.do(http.MethodGet, "/analytics/scheduler")
	require.Equal(t, http.StatusOK, rec.Code)

	var got analytics.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.IsRunning)
	assert.Equal(t, 5, got.IntervalMinutes)
}

func TestForceUpdate(t *testing.T) {
	env := newTestEnv(t, &fakeDashboard{})

	rec := env.do(http.MethodPost, "/analytics/scheduler/force-update")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-env.scheduler.forced:
	case <-time.After(2 * time.Second):
		t.Fatal("forced pass did not run")
	}
}

func TestForceUpdate_QueuedBehindPassInFlight(t *testing.T) {
	env := newTestEnv(t, &fakeDashboard{})
	env.scheduler.status = analytics.Status{PassInFlight: true}

	rec := env.do(http.MethodPost, "/analytics/scheduler/force-update")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "queued", body["status"])

	select {
	case <-env.scheduler.forced:
	case <-time.After(2 * time.Second):
		t.Fatal("forced pass was not requested")
	}
}

func TestRecomputeUser(t *testing.T) {
	env := newTestEnv(t, &fakeDashboard{})
	env.updater.snapshots["u1"] = &analytics.StudentAnalyticsSnapshot{UserID: "u1", TotalCredits: 130}

	rec := env.do(http.MethodPost, "/analytics/users/u1/recompute")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"u1"}, env.updater.updated)

	var got analytics.StudentAnalyticsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(130), got.TotalCredits)
}

func TestRecomputeUser_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"unknown user", analytics.ErrUserNotFound, http.StatusNotFound},
		{"wrapped unknown user", errors.Join(errors.New("recompute"), analytics.ErrUserNotFound), http.StatusNotFound},
		{"store failure", errRepoDown, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &fakeDashboard{})
			env.updater.updateErr = tt.err

			rec := env.do(http.MethodPost, "/analytics/users/ghost/recompute")
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestGetUserAnalytics(t *testing.T) {
	env := newTestEnv(t, &fakeDashboard{})
	env.updater.snapshots["u1"] = &analytics.StudentAnalyticsSnapshot{UserID: "u1"}

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/analytics/users/u1").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/analytics/users/u2").Code)

	env.updater.readErr = errRepoDown
	assert.Equal(t, http.StatusInternalServerError, env.do(http.MethodGet, "/analytics/users/u1").Code)
}

func TestRecomputeUser_RateLimited(t *testing.T) {
	updater := &fakeUpdater{snapshots: map[string]*analytics.StudentAnalyticsSnapshot{
		"u1": {UserID: "u1"},
	}}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	handler := NewOpsRouter(OpsRouterConfig{
		Logger:    logger,
		Analytics: NewAnalyticsHandlers(&fakeDashboard{}, &fakeScheduler{forced: make(chan struct{})}, updater, logger),
		Limiter:   middleware.NewRateLimiter(middleware.RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Hour}),
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analytics/users/u1/recompute", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Len(t, updater.updated, 2)

	// Reads are not throttled.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analytics/users/u1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorResponsesCarryRequestID(t *testing.T) {
	env := newTestEnv(t, &fakeDashboard{})

	req := httptest.NewRequest(http.MethodGet, "/analytics/users/missing", nil)
	req.Header.Set(httputil.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req-42", body.RequestID)
}

func TestOpsRouter_SpanNamesUseRouteTemplate(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	env := newTestEnv(t, &fakeDashboard{})
	env.updater.snapshots["user-42"] = &analytics.StudentAnalyticsSnapshot{UserID: "user-42"}

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/analytics/users/user-42").Code)
	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/nope/user-42").Code)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.ElementsMatch(t, []string{"GET /analytics/users/{userID}", "GET unmatched"}, names)
}
