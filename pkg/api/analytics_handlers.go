package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/internhub/internhub/pkg/analytics"
	"github.com/internhub/internhub/pkg/async"
	"github.com/internhub/internhub/pkg/httputil"
	"github.com/internhub/internhub/pkg/observability"
)

// forcedPassTimeout bounds a pass started from the ops endpoint.
const forcedPassTimeout = 30 * time.Minute

// Dashboard produces the aggregated dashboard bundle.
type Dashboard interface {
	GetCompleteAnalytics(ctx context.Context) *analytics.CompleteAnalytics
}

// SchedulerControl is the scheduler surface exposed to operators.
type SchedulerControl interface {
	Status() analytics.Status
	ForceUpdate(ctx context.Context) (analytics.PassResult, error)
}

// SnapshotUpdater recomputes and reads per-user snapshots.
type SnapshotUpdater interface {
	UpdateUserAnalytics(ctx context.Context, userID string) error
	GetUserAnalytics(ctx context.Context, userID string) (*analytics.StudentAnalyticsSnapshot, error)
}

// AnalyticsHandlers provides the analytics ops endpoints
type AnalyticsHandlers struct {
	dashboard Dashboard
	scheduler SchedulerControl
	updater   SnapshotUpdater
	logger    *observability.Logger
}

// NewAnalyticsHandlers creates a new analytics handlers instance
func NewAnalyticsHandlers(dashboard Dashboard, scheduler SchedulerControl, updater SnapshotUpdater, logger *observability.Logger) *AnalyticsHandlers {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &AnalyticsHandlers{
		dashboard: dashboard,
		scheduler: scheduler,
		updater:   updater,
		logger:    logger.WithField("component", "analytics-api"),
	}
}

// RegisterRoutes registers analytics routes. guard wraps the routes that
// start recomputes.
func (h *AnalyticsHandlers) RegisterRoutes(r *mux.Router, guard func(http.Handler) http.Handler) {
	r.HandleFunc("/analytics/dashboard", h.getDashboard).Methods(http.MethodGet)

	r.HandleFunc("/analytics/scheduler", h.getSchedulerStatus).Methods(http.MethodGet)
	r.Handle("/analytics/scheduler/force-update", guard(http.HandlerFunc(h.forceUpdate))).Methods(http.MethodPost)

	r.HandleFunc("/analytics/users/{userID}", h.getUserAnalytics).Methods(http.MethodGet)
	r.Handle("/analytics/users/{userID}/recompute", guard(http.HandlerFunc(h.recomputeUser))).Methods(http.MethodPost)
}

// getDashboard handles GET /analytics/dashboard. A bundle with failed fields
// is still returned; its errors map names them.
func (h *AnalyticsHandlers) getDashboard(w http.ResponseWriter, r *http.Request) {
	bundle := h.dashboard.GetCompleteAnalytics(r.Context())
	if bundle.Partial() {
		w.Header().Set("X-Analytics-Partial", "true")
	}
	_ = httputil.WriteJSON(w, http.StatusOK, bundle)
}

func (h *AnalyticsHandlers) getSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteJSON(w, http.StatusOK, h.scheduler.Status())
}

// forceUpdate handles POST /analytics/scheduler/force-update. The pass runs in
// the background. "queued" means it starts once the running pass finishes.
func (h *AnalyticsHandlers) forceUpdate(w http.ResponseWriter, r *http.Request) {
	status := "accepted"
	if h.scheduler.Status().PassInFlight {
		status = "queued"
	}

	async.SafeGo(context.WithoutCancel(r.Context()), h.logger, forcedPassTimeout, "forced analytics pass",
		func(ctx context.Context) error {
			result, err := h.scheduler.ForceUpdate(ctx)
			if err != nil {
				return err
			}
			h.logger.WithFields(map[string]interface{}{
				"users":     result.Users,
				"succeeded": result.Succeeded,
				"failed":    result.Failed,
			}).Info("Forced analytics pass finished")
			return nil
		})

	_ = httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": status})
}

func (h *AnalyticsHandlers) getUserAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.PathParamOrError(w, r, "userID")
	if !ok {
		return
	}

	snap, err := h.updater.GetUserAnalytics(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to read snapshot")
		httputil.WriteInternalError(w, r, "failed to read analytics")
		return
	}
	if snap == nil {
		httputil.WriteNotFoundError(w, r, "no analytics for user")
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, snap)
}

// recomputeUser handles POST /analytics/users/{userID}/recompute and returns
// the stored snapshot.
func (h *AnalyticsHandlers) recomputeUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.PathParamOrError(w, r, "userID")
	if !ok {
		return
	}

	if err := h.updater.UpdateUserAnalytics(r.Context(), userID); err != nil {
		if errors.Is(err, analytics.ErrUserNotFound) {
			httputil.WriteNotFoundError(w, r, "user not found")
			return
		}
		h.logger.WithError(err).WithField("user_id", userID).Error("Recompute failed")
		httputil.WriteInternalError(w, r, "recompute failed")
		return
	}

	h.getUserAnalytics(w, r)
}
