package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/internhub/internhub/pkg/analytics"
)

// entityTable maps a countable entity to its table and the column holding
// its defining timestamp.
type entityTable struct {
	table      string
	timeColumn string
	hasStatus  bool
	hasRole    bool
}

var entityTables = map[analytics.Entity]entityTable{
	analytics.EntityUsers:         {table: "users", timeColumn: "created_at", hasRole: true},
	analytics.EntityInternships:   {table: "internships", timeColumn: "created_at", hasStatus: true},
	analytics.EntityApplications:  {table: "internship_applications", timeColumn: "applied_at", hasStatus: true},
	analytics.EntityCertificates:  {table: "certificates", timeColumn: "issue_date"},
	analytics.EntityTasks:         {table: "tasks", timeColumn: "created_at", hasStatus: true},
	analytics.EntitySubmissions:   {table: "task_submissions", timeColumn: "submitted_at", hasStatus: true},
	analytics.EntityCreditHistory: {table: "credit_history", timeColumn: "created_at"},
}

// Store implements analytics.Repository on PostgreSQL. Dashboard counts go
// to a replica; per-user reads and every write go to the primary.
type Store struct {
	conns *ConnectionManager
	now   func() time.Time
}

// NewStore creates a store over the given connections.
func NewStore(conns *ConnectionManager) *Store {
	return &Store{conns: conns, now: time.Now}
}

var _ analytics.Repository = (*Store)(nil)

// buildCountQuery renders the COUNT statement for filter. Placeholders are
// numbered in the order conditions are appended.
func buildCountQuery(entity analytics.Entity, filter analytics.Filter) (string, []interface{}, error) {
	et, ok := entityTables[entity]
	if !ok {
		return "", nil, fmt.Errorf("unknown entity %q", entity)
	}

	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !filter.From.IsZero() {
		add(et.timeColumn+" >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add(et.timeColumn+" < $%d", filter.To)
	}
	if filter.Status != "" {
		if !et.hasStatus {
			return "", nil, fmt.Errorf("entity %q has no status", entity)
		}
		add("status = $%d", filter.Status)
	}
	if len(filter.Roles) > 0 {
		if !et.hasRole {
			return "", nil, fmt.Errorf("entity %q has no role", entity)
		}
		add("role = ANY($%d)", pq.Array(filter.Roles))
	}

	query := "SELECT COUNT(*) FROM " + et.table
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query, args, nil
}

// Count returns the number of rows of entity matching filter.
func (s *Store) Count(ctx context.Context, entity analytics.Entity, filter analytics.Filter) (int64, error) {
	query, args, err := buildCountQuery(entity, filter)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := s.conns.Replica().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", entity, err)
	}
	return n, nil
}

// CountActiveUsers counts users who submitted, applied or updated their
// profile at or after since.
func (s *Store) CountActiveUsers(ctx context.Context, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM users u
		WHERE u.updated_at >= $1
		   OR EXISTS (SELECT 1 FROM task_submissions ts WHERE ts.user_id = u.id AND ts.submitted_at >= $1)
		   OR EXISTS (SELECT 1 FROM internship_applications ia WHERE ia.user_id = u.id AND ia.applied_at >= $1)
	`

	var n int64
	if err := s.conns.Replica().QueryRowContext(ctx, query, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}
	return n, nil
}

// UserExists reports whether a users row with userID exists.
func (s *Store) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.conns.Primary().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user %s: %w", userID, err)
	}
	return exists, nil
}

// ListUserIDsByRole returns ids ordered by creation so scheduler passes are
// stable across runs.
func (s *Store) ListUserIDsByRole(ctx context.Context, role string) ([]string, error) {
	rows, err := s.conns.Replica().QueryContext(ctx,
		`SELECT id FROM users WHERE role = $1 ORDER BY created_at, id`, role,
	)
	if err != nil {
		return nil, fmt.Errorf("list users with role %s: %w", role, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountTasksByStatus counts the tasks assigned to userID, in total and per status.
func (s *Store) CountTasksByStatus(ctx context.Context, userID string) (analytics.TaskCounts, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $4)
		FROM tasks
		WHERE assigned_to = $1
	`

	var c analytics.TaskCounts
	err := s.conns.Primary().QueryRowContext(ctx, query, userID,
		analytics.TaskCompleted, analytics.TaskPending, analytics.TaskOverdue,
	).Scan(&c.Total, &c.Completed, &c.Pending, &c.Overdue)
	if err != nil {
		return analytics.TaskCounts{}, fmt.Errorf("count tasks for %s: %w", userID, err)
	}
	return c, nil
}

// ListSubmissions returns userID's submissions with the due date of each task.
func (s *Store) ListSubmissions(ctx context.Context, userID string) ([]analytics.Submission, error) {
	query := `
		SELECT ts.id, ts.task_id, ts.status, ts.submitted_at, t.due_date
		FROM task_submissions ts
		JOIN tasks t ON t.id = ts.task_id
		WHERE ts.user_id = $1
		ORDER BY ts.submitted_at
	`

	rows, err := s.conns.Primary().QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list submissions for %s: %w", userID, err)
	}
	defer rows.Close()

	var subs []analytics.Submission
	for rows.Next() {
		var (
			sub analytics.Submission
			due sql.NullTime
		)
		if err := rows.Scan(&sub.ID, &sub.TaskID, &sub.Status, &sub.SubmittedAt, &due); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if due.Valid {
			d := due.Time
			sub.DueDate = &d
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ListCreditHistory returns every ledger entry of userID.
func (s *Store) ListCreditHistory(ctx context.Context, userID string) ([]analytics.CreditEntry, error) {
	rows, err := s.conns.Primary().QueryContext(ctx,
		`SELECT user_id, amount, type, created_at FROM credit_history WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list credit history for %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []analytics.CreditEntry
	for rows.Next() {
		var e analytics.CreditEntry
		if err := rows.Scan(&e.UserID, &e.Amount, &e.Type, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertSnapshot inserts or fully replaces the user's snapshot row unless the
// stored row was computed later. On success snap.ID and snap.CreatedAt carry
// the stored row's values.
func (s *Store) UpsertSnapshot(ctx context.Context, snap *analytics.StudentAnalyticsSnapshot) (bool, error) {
	query := `
		INSERT INTO student_analytics (
			id, user_id, total_tasks, completed_tasks, pending_tasks, overdue_tasks,
			average_score, total_submissions, on_time_submissions, late_submissions,
			total_credits, last_active, computed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		ON CONFLICT (user_id) DO UPDATE SET
			total_tasks = EXCLUDED.total_tasks,
			completed_tasks = EXCLUDED.completed_tasks,
			pending_tasks = EXCLUDED.pending_tasks,
			overdue_tasks = EXCLUDED.overdue_tasks,
			average_score = EXCLUDED.average_score,
			total_submissions = EXCLUDED.total_submissions,
			on_time_submissions = EXCLUDED.on_time_submissions,
			late_submissions = EXCLUDED.late_submissions,
			total_credits = EXCLUDED.total_credits,
			last_active = EXCLUDED.last_active,
			computed_at = EXCLUDED.computed_at,
			updated_at = EXCLUDED.updated_at
		WHERE student_analytics.computed_at <= EXCLUDED.computed_at
		RETURNING id, created_at
	`

	id := snap.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := s.now().UTC()

	var (
		storedID  string
		createdAt time.Time
	)
	err := s.conns.Primary().QueryRowContext(ctx, query,
		id, snap.UserID, snap.TotalTasks, snap.CompletedTasks, snap.PendingTasks, snap.OverdueTasks,
		snap.AverageScore, snap.TotalSubmissions, snap.OnTimeSubmissions, snap.LateSubmissions,
		snap.TotalCredits, snap.LastActive, snap.ComputedAt, now,
	).Scan(&storedID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("upsert snapshot for %s: %w", snap.UserID, err)
	}

	snap.ID = storedID
	snap.CreatedAt = createdAt
	snap.UpdatedAt = now
	return true, nil
}

// GetSnapshot returns the stored snapshot, or nil when the user has none.
func (s *Store) GetSnapshot(ctx context.Context, userID string) (*analytics.StudentAnalyticsSnapshot, error) {
	query := `
		SELECT id, user_id, total_tasks, completed_tasks, pending_tasks, overdue_tasks,
			average_score, total_submissions, on_time_submissions, late_submissions,
			total_credits, last_active, computed_at, created_at, updated_at
		FROM student_analytics
		WHERE user_id = $1
	`

	var snap analytics.StudentAnalyticsSnapshot
	err := s.conns.Primary().QueryRowContext(ctx, query, userID).Scan(
		&snap.ID, &snap.UserID, &snap.TotalTasks, &snap.CompletedTasks, &snap.PendingTasks, &snap.OverdueTasks,
		&snap.AverageScore, &snap.TotalSubmissions, &snap.OnTimeSubmissions, &snap.LateSubmissions,
		&snap.TotalCredits, &snap.LastActive, &snap.ComputedAt, &snap.CreatedAt, &snap.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot for %s: %w", userID, err)
	}
	return &snap, nil
}

// DeleteCreditHistoryBefore removes ledger rows created before cutoff.
func (s *Store) DeleteCreditHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.conns.Primary().ExecContext(ctx,
		`DELETE FROM credit_history WHERE created_at < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete credit history: %w", err)
	}
	return result.RowsAffected()
}
