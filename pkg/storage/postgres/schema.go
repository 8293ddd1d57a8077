package postgres

import (
	"context"
	"fmt"
)

// snapshotSchema creates the analytics-owned table. The business tables it
// reads from are managed by the platform's own migrations.
const snapshotSchema = `
CREATE TABLE IF NOT EXISTS student_analytics (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL UNIQUE,
	total_tasks         BIGINT NOT NULL DEFAULT 0,
	completed_tasks     BIGINT NOT NULL DEFAULT 0,
	pending_tasks       BIGINT NOT NULL DEFAULT 0,
	overdue_tasks       BIGINT NOT NULL DEFAULT 0,
	average_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_submissions   BIGINT NOT NULL DEFAULT 0,
	on_time_submissions BIGINT NOT NULL DEFAULT 0,
	late_submissions    BIGINT NOT NULL DEFAULT 0,
	total_credits       BIGINT NOT NULL DEFAULT 0,
	last_active         TIMESTAMPTZ NOT NULL,
	computed_at         TIMESTAMPTZ NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_student_analytics_computed_at ON student_analytics (computed_at);
`

// EnsureSchema creates the student_analytics table if it is missing.
func EnsureSchema(ctx context.Context, conns *ConnectionManager) error {
	if _, err := conns.Primary().ExecContext(ctx, snapshotSchema); err != nil {
		return fmt.Errorf("ensure analytics schema: %w", err)
	}
	return nil
}
