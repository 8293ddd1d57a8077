package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/internhub/internhub/pkg/httputil"
	"github.com/internhub/internhub/pkg/middleware"
	"github.com/internhub/internhub/pkg/observability"
)

// OpsRouterConfig wires the ops surface. Nil dependencies disable their routes.
type OpsRouterConfig struct {
	Health    *observability.HealthChecker
	Registry  *prometheus.Registry
	Metrics   *observability.Metrics
	Logger    *observability.Logger
	Analytics *AnalyticsHandlers
	// Limiter throttles the endpoints that trigger recomputes. Nil disables it.
	Limiter middleware.Limiter
}

// NewOpsRouter builds the health, metrics and analytics routes, wrapped with
// request metrics and OpenTelemetry spans.
func NewOpsRouter(cfg OpsRouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.DefaultLogger()
	}

	r := mux.NewRouter()
	r.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		observability.HTTPMetricsMiddleware(cfg.Metrics, routeTemplate),
		nameSpanByRoute,
	)

	if cfg.Health != nil {
		r.HandleFunc("/health", cfg.Health.Readiness).Methods(http.MethodGet)
		r.HandleFunc("/health/live", cfg.Health.Liveness).Methods(http.MethodGet)
		r.HandleFunc("/health/ready", cfg.Health.Readiness).Methods(http.MethodGet)
	}
	if cfg.Registry != nil {
		r.Handle("/metrics", observability.MetricsHandler(cfg.Registry)).Methods(http.MethodGet)
	}
	if cfg.Analytics != nil {
		guard := func(h http.Handler) http.Handler { return h }
		if cfg.Limiter != nil {
			guard = middleware.RateLimit(cfg.Limiter, middleware.ClientIP, logger)
		}
		cfg.Analytics.RegisterRoutes(r, guard)
	}

	// Routing happens inside the handler, so spans start with a placeholder
	// name and nameSpanByRoute renames them once a route matched.
	return otelhttp.NewHandler(r, "internhub-ops",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " unmatched"
		}),
	)
}

// nameSpanByRoute names the request span after the route template so ids in
// the path never reach span names.
func nameSpanByRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace.SpanFromContext(r.Context()).SetName(r.Method + " " + routeTemplate(r))
		next.ServeHTTP(w, r)
	})
}

// routeTemplate labels metrics with the matched route, never the raw path.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
