// Package observability holds the ambient plumbing shared by the analytics
// service: a JSON slog logger, Prometheus metrics, dependency health checks,
// OpenTelemetry setup, panic recovery and graceful shutdown.
//
// Logging:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", id).Info("snapshot updated")
//
// A nil *Logger and a nil *Metrics are both valid and record nothing, so
// library packages accept them as optional dependencies.
//
// Health:
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("database", true, observability.DatabaseCheck(db))
//	checker.AddCheck("redis", false, observability.RedisCheck(rdb))
package observability
