package analytics

import "time"

// BuildSnapshot derives a user's snapshot from their task counts, submissions
// and credit ledger. readAt is when the inputs were read; it becomes the
// snapshot's ComputedAt, LastActive and UpdatedAt. ID and CreatedAt are left
// for the store.
func BuildSnapshot(userID string, tasks TaskCounts, submissions []Submission, ledger []CreditEntry, readAt time.Time) *StudentAnalyticsSnapshot {
	snap := &StudentAnalyticsSnapshot{
		UserID:           userID,
		TotalTasks:       tasks.Total,
		CompletedTasks:   tasks.Completed,
		PendingTasks:     tasks.Pending,
		OverdueTasks:     tasks.Overdue,
		TotalSubmissions: int64(len(submissions)),
		LastActive:       readAt,
		UpdatedAt:        readAt,
		ComputedAt:       readAt,
	}

	var approved int64
	for _, sub := range submissions {
		if IsOnTime(sub) {
			snap.OnTimeSubmissions++
		} else {
			snap.LateSubmissions++
		}
		if sub.Status == SubmissionApproved {
			approved++
		}
	}
	if snap.TotalSubmissions > 0 {
		snap.AverageScore = float64(approved) / float64(snap.TotalSubmissions) * 100
	}

	snap.TotalCredits = CreditBalance(ledger)
	return snap
}

// IsOnTime reports whether a submission arrived no later than its task's due
// date. Submissions for tasks without a due date are always on time.
func IsOnTime(sub Submission) bool {
	return sub.DueDate == nil || !sub.SubmittedAt.After(*sub.DueDate)
}

// CreditBalance sums EARNED and BONUS entries and subtracts every other type.
func CreditBalance(ledger []CreditEntry) int64 {
	var total int64
	for _, e := range ledger {
		switch e.Type {
		case CreditEarned, CreditBonus:
			total += e.Amount
		default:
			total -= e.Amount
		}
	}
	return total
}
