package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/internhub/internhub/pkg/analytics/queue"
	"github.com/internhub/internhub/pkg/async"
	"github.com/internhub/internhub/pkg/observability"
)

// Business events that trigger a snapshot recompute.
const (
	EventTaskSubmitted            = "task_submitted"
	EventTaskReviewed             = "task_reviewed"
	EventApplicationSubmitted     = "application_submitted"
	EventApplicationStatusChanged = "application_status_changed"
	EventCreditsAwarded           = "credits_awarded"
	EventCertificateIssued        = "certificate_issued"
	EventUserActivity             = "user_activity"
)

const fallbackTimeout = 30 * time.Second

// Hooks turns business events into snapshot recomputes. Every hook is
// fire-and-forget: it never returns an error and never blocks on the
// recompute itself.
type Hooks struct {
	queue   queue.Queue
	updater *Updater
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewHooks creates hooks that enqueue onto q. With a nil q, or when an
// enqueue fails, the recompute runs in a background goroutine instead.
func NewHooks(q queue.Queue, updater *Updater, logger *observability.Logger, metrics *observability.Metrics) *Hooks {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Hooks{
		queue:   q,
		updater: updater,
		logger:  logger.WithField("component", "analytics_hooks"),
		metrics: metrics,
	}
}

// OnTaskSubmitted recomputes the submitter after a task submission.
func (h *Hooks) OnTaskSubmitted(ctx context.Context, userID, taskID string) {
	h.dispatch(ctx, userID, EventTaskSubmitted, map[string]interface{}{"task_id": taskID})
}

// OnTaskReviewed recomputes the intern whose submission was reviewed.
func (h *Hooks) OnTaskReviewed(ctx context.Context, userID, taskID string, approved bool) {
	h.dispatch(ctx, userID, EventTaskReviewed, map[string]interface{}{"task_id": taskID, "approved": approved})
}

// OnApplicationSubmitted recomputes the applicant.
func (h *Hooks) OnApplicationSubmitted(ctx context.Context, userID, applicationID string) {
	h.dispatch(ctx, userID, EventApplicationSubmitted, map[string]interface{}{"application_id": applicationID})
}

// OnApplicationStatusChanged recomputes the applicant after a status change.
func (h *Hooks) OnApplicationStatusChanged(ctx context.Context, userID, applicationID, status string) {
	h.dispatch(ctx, userID, EventApplicationStatusChanged, map[string]interface{}{"application_id": applicationID, "status": status})
}

// OnCreditsAwarded recomputes the user after a credit ledger entry.
func (h *Hooks) OnCreditsAwarded(ctx context.Context, userID string, amount int64, reason string) {
	h.dispatch(ctx, userID, EventCreditsAwarded, map[string]interface{}{"amount": amount, "reason": reason})
}

// OnCertificateIssued recomputes the certificate holder.
func (h *Hooks) OnCertificateIssued(ctx context.Context, userID, certificateID string) {
	h.dispatch(ctx, userID, EventCertificateIssued, map[string]interface{}{"certificate_id": certificateID})
}

// OnUserActivity refreshes the user's last-active time.
func (h *Hooks) OnUserActivity(ctx context.Context, userID string) {
	h.dispatch(ctx, userID, EventUserActivity, nil)
}

func (h *Hooks) dispatch(ctx context.Context, userID, event string, meta map[string]interface{}) {
	entry := h.logger.WithFields(meta).WithFields(map[string]interface{}{
		"user_id": userID,
		"event":   event,
	})
	entry.Debug("Analytics event received")

	if h.queue != nil {
		err := h.queue.Enqueue(ctx, queue.NewJob(userID, event))
		if err == nil {
			h.metrics.IncQueueJob("enqueued")
			return
		}
		entry.WithError(err).Warn("Enqueue failed, recomputing in background")
		h.metrics.IncQueueJob("fallback")
	}

	// The caller's request may end before the recompute does.
	async.SafeGo(context.WithoutCancel(ctx), h.logger, fallbackTimeout, "analytics "+event, func(ctx context.Context) error {
		h.updater.TryUpdate(ctx, userID)
		return nil
	})
}

// HandleJob is the queue.Handler that performs a queued recompute. Unknown
// users are not retried.
func (h *Hooks) HandleJob(ctx context.Context, job *queue.Job) error {
	err := h.updater.UpdateUserAnalytics(ctx, job.UserID)
	if errors.Is(err, ErrUserNotFound) {
		observability.FromContext(ctx).Debug("Dropping recompute for unknown user")
		return queue.Permanent(err)
	}
	return err
}
