package analytics

import (
	"context"
	"time"
)

// Repository is the data-access surface the analytics core reads and writes
// through. pkg/storage/postgres.Store implements it.
type Repository interface {
	// Count returns the number of entity rows matching filter.
	Count(ctx context.Context, entity Entity, filter Filter) (int64, error)
	// CountActiveUsers counts users with a submission, an application or a
	// profile update at or after since.
	CountActiveUsers(ctx context.Context, since time.Time) (int64, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	ListUserIDsByRole(ctx context.Context, role string) ([]string, error)

	CountTasksByStatus(ctx context.Context, userID string) (TaskCounts, error)
	ListSubmissions(ctx context.Context, userID string) ([]Submission, error)
	ListCreditHistory(ctx context.Context, userID string) ([]CreditEntry, error)

	// UpsertSnapshot writes snap keyed by user id. A stored row with a newer
	// ComputedAt is left alone; applied reports whether the write happened.
	UpsertSnapshot(ctx context.Context, snap *StudentAnalyticsSnapshot) (applied bool, err error)
	// GetSnapshot returns nil without error when the user has no snapshot.
	GetSnapshot(ctx context.Context, userID string) (*StudentAnalyticsSnapshot, error)
	DeleteCreditHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
