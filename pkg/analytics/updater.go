package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/internhub/internhub/pkg/async"
	"github.com/internhub/internhub/pkg/observability"
)

// Updater recomputes and persists per-user snapshots.
type Updater struct {
	repo    Repository
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	batchConcurrency int
	userTimeout      time.Duration

	flights singleflight.Group
}

// BatchResult summarizes a BatchUpdateAnalytics call.
type BatchResult struct {
	Total         int      `json:"total"`
	Succeeded     int      `json:"succeeded"`
	Failed        int      `json:"failed"`
	FailedUserIDs []string `json:"failedUserIds,omitempty"`
}

// NewUpdater creates a snapshot updater
func NewUpdater(repo Repository, opts ...Option) *Updater {
	o := buildOptions(opts)
	return &Updater{
		repo:             repo,
		logger:           o.logger.WithField("component", "analytics_updater"),
		metrics:          o.metrics,
		tracer:           observability.Tracer(),
		now:              o.now,
		batchConcurrency: o.batchConcurrency,
		userTimeout:      o.userTimeout,
	}
}

// UpdateUserAnalytics recomputes userID's snapshot and upserts it. It returns
// ErrUserNotFound, wrapped, when the user does not exist.
//
// Calls for the same user share one recompute. A call that arrives while a
// recompute is already reading runs one more afterwards, so the stored row
// always reflects data at least as new as the call. The shared recompute is
// bounded by the per-user timeout rather than by whichever caller started it,
// and each caller stops waiting when its own ctx is done.
func (u *Updater) UpdateUserAnalytics(ctx context.Context, userID string) error {
	requested := u.now()
	for {
		ch := u.flights.DoChan(userID, func() (interface{}, error) {
			flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.userTimeout)
			defer cancel()
			started := u.now()
			return started, u.recompute(flightCtx, userID, started)
		})

		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			return fmt.Errorf("recompute user %s: %w", userID, ctx.Err())
		}

		if started, ok := res.Val.(time.Time); ok && started.Before(requested) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			continue
		}
		return res.Err
	}
}

func (u *Updater) recompute(ctx context.Context, userID string, readAt time.Time) (err error) {
	ctx, span := u.tracer.Start(ctx, "analytics.UpdateUserAnalytics",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		u.metrics.ObserveRecompute(status, time.Since(start))
	}()

	exists, err := u.repo.UserExists(ctx, userID)
	if err != nil {
		status = "error"
		return fmt.Errorf("check user %s: %w", userID, err)
	}
	if !exists {
		status = "not_found"
		return fmt.Errorf("user %s: %w", userID, ErrUserNotFound)
	}

	var (
		tasks       TaskCounts
		submissions []Submission
		ledger      []CreditEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tasks, err = u.repo.CountTasksByStatus(gctx, userID); err != nil {
			return fmt.Errorf("count tasks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if submissions, err = u.repo.ListSubmissions(gctx, userID); err != nil {
			return fmt.Errorf("list submissions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if ledger, err = u.repo.ListCreditHistory(gctx, userID); err != nil {
			return fmt.Errorf("list credit history: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		status = "error"
		return fmt.Errorf("recompute user %s: %w", userID, err)
	}

	snap := BuildSnapshot(userID, tasks, submissions, ledger, readAt)

	applied, err := u.repo.UpsertSnapshot(ctx, snap)
	if err != nil {
		status = "error"
		return fmt.Errorf("upsert snapshot for user %s: %w", userID, err)
	}
	if !applied {
		status = "stale"
		u.logger.WithField("user_id", userID).Debug("Stored snapshot is newer, write skipped")
	}
	return nil
}

// TryUpdate is UpdateUserAnalytics for best-effort callers: failures are
// logged and swallowed.
func (u *Updater) TryUpdate(ctx context.Context, userID string) {
	if err := u.UpdateUserAnalytics(ctx, userID); err != nil {
		u.logFailure(err, userID, "update_user_analytics")
	}
}

// GetUserAnalytics returns the stored snapshot, or nil when none exists yet.
func (u *Updater) GetUserAnalytics(ctx context.Context, userID string) (*StudentAnalyticsSnapshot, error) {
	snap, err := u.repo.GetSnapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot for user %s: %w", userID, err)
	}
	return snap, nil
}

// BatchUpdateAnalytics recomputes every user concurrently, bounded by the
// batch concurrency, with a timeout per user. One user's failure never
// affects the others.
func (u *Updater) BatchUpdateAnalytics(ctx context.Context, userIDs []string) BatchResult {
	result := BatchResult{Total: len(userIDs)}

	errs := async.Batch(ctx, userIDs, u.batchConcurrency, u.userTimeout, u.UpdateUserAnalytics)
	result.Failed = async.CountErrors(errs)
	result.Succeeded = result.Total - result.Failed
	for i, err := range errs {
		if err == nil {
			continue
		}
		result.FailedUserIDs = append(result.FailedUserIDs, userIDs[i])
		u.logFailure(err, userIDs[i], "batch_update_analytics")
	}
	return result
}

func (u *Updater) logFailure(err error, userID, operation string) {
	entry := u.logger.WithError(err).WithFields(map[string]interface{}{
		"user_id":   userID,
		"operation": operation,
	})
	if errors.Is(err, ErrUserNotFound) {
		entry.Warn("Analytics update skipped for unknown user")
		return
	}
	entry.Error("Analytics update failed")
}
