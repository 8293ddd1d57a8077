// Package analytics maintains derived, read-optimized metrics for the
// internship platform: dashboard aggregates with month-over-month growth, a
// six-month time series, and one materialized performance snapshot per user.
//
// # Dashboard
//
// Service reads through a Repository and never writes:
//
//	svc := analytics.NewService(store, analytics.WithLogger(logger))
//	bundle := svc.GetCompleteAnalytics(ctx)
//	if err := bundle.Err(); err != nil {
//		// some fields are missing, see bundle.Errors
//	}
//
// # Snapshots
//
// Updater recomputes a user's StudentAnalyticsSnapshot from tasks,
// submissions and the credit ledger, and upserts it by user id. Concurrent
// requests for one user are coalesced, and a recompute that read older data
// never overwrites a newer row.
//
//	updater := analytics.NewUpdater(store)
//	err := updater.UpdateUserAnalytics(ctx, userID)
//
// Hooks turn business events into queued recompute jobs, and Scheduler runs a
// full pass over every intern on a fixed interval in throttled batches.
package analytics
