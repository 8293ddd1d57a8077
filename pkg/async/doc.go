// Package async provides safe concurrent execution primitives for background tasks.
//
// SafeGo runs fire-and-forget work with a timeout and panic recovery:
//
//	async.SafeGo(ctx, logger, 30*time.Second, "recompute", func(ctx context.Context) error {
//		return updater.UpdateUserAnalytics(ctx, userID)
//	})
//
// WorkerPool is a fixed set of goroutines fed through Submit:
//
//	pool := async.NewWorkerPool(ctx, logger, 4, "analytics jobs", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
// Batch fans a slice out with bounded concurrency and returns per-item errors:
//
//	errs := async.Batch(ctx, userIDs, 10, 30*time.Second, updater.UpdateUserAnalytics)
package async
