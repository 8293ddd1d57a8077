package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildSnapshot_Scenario(t *testing.T) {
	due := testNow.Add(-24 * time.Hour)
	before := due.Add(-time.Hour)
	after := due.Add(time.Hour)

	tasks := TaskCounts{Total: 5, Completed: 3, Pending: 1, Overdue: 1}
	subs := []Submission{
		{ID: "s1", Status: SubmissionApproved, SubmittedAt: before, DueDate: &due},
		{ID: "s2", Status: SubmissionApproved, SubmittedAt: before, DueDate: &due},
		{ID: "s3", Status: SubmissionApproved, SubmittedAt: before, DueDate: &due},
		{ID: "s4", Status: "REJECTED", SubmittedAt: after, DueDate: &due},
	}

	snap := BuildSnapshot("user-1", tasks, subs, nil, testNow)

	assert.Equal(t, "user-1", snap.UserID)
	assert.Equal(t, int64(5), snap.TotalTasks)
	assert.Equal(t, int64(3), snap.CompletedTasks)
	assert.Equal(t, int64(1), snap.PendingTasks)
	assert.Equal(t, int64(1), snap.OverdueTasks)
	assert.Equal(t, int64(4), snap.TotalSubmissions)
	assert.Equal(t, int64(3), snap.OnTimeSubmissions)
	assert.Equal(t, int64(1), snap.LateSubmissions)
	assert.Equal(t, 75.0, snap.AverageScore)
	assert.Equal(t, testNow, snap.LastActive)
	assert.Equal(t, testNow, snap.ComputedAt)
	assert.Empty(t, snap.ID)
}

func TestBuildSnapshot_NoSubmissions(t *testing.T) {
	snap := BuildSnapshot("user-1", TaskCounts{Total: 2, Pending: 2}, nil, nil, testNow)
	assert.Equal(t, 0.0, snap.AverageScore)
	assert.Equal(t, int64(0), snap.TotalSubmissions)
	assert.Equal(t, int64(0), snap.TotalCredits)
}

func TestBuildSnapshot_AverageScoreIsNotRounded(t *testing.T) {
	subs := []Submission{
		{Status: SubmissionApproved, SubmittedAt: testNow},
		{Status: "PENDING", SubmittedAt: testNow},
		{Status: "PENDING", SubmittedAt: testNow},
	}
	snap := BuildSnapshot("user-1", TaskCounts{}, subs, nil, testNow)
	assert.InDelta(t, 100.0/3, snap.AverageScore, 1e-9)
}

func TestIsOnTime(t *testing.T) {
	due := testNow

	tests := []struct {
		name string
		sub  Submission
		want bool
	}{
		{"no due date", Submission{SubmittedAt: testNow.Add(1000 * time.Hour)}, true},
		{"before due", Submission{SubmittedAt: due.Add(-time.Second), DueDate: &due}, true},
		{"exactly at due", Submission{SubmittedAt: due, DueDate: &due}, true},
		{"after due", Submission{SubmittedAt: due.Add(time.Second), DueDate: &due}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOnTime(tt.sub))
		})
	}
}

func TestOnTimePlusLateEqualsTotal(t *testing.T) {
	due := testNow
	for n := 0; n < 20; n++ {
		subs := make([]Submission, n)
		for i := range subs {
			subs[i].SubmittedAt = due.Add(time.Duration(i-n/2) * time.Hour)
			if i%3 != 0 {
				subs[i].DueDate = &due
			}
		}
		snap := BuildSnapshot("u", TaskCounts{}, subs, nil, testNow)
		assert.Equal(t, snap.TotalSubmissions, snap.OnTimeSubmissions+snap.LateSubmissions)
	}
}

func TestCreditBalance(t *testing.T) {
	ledger := []CreditEntry{
		{Amount: 100, Type: CreditEarned},
		{Amount: 50, Type: CreditBonus},
		{Amount: 30, Type: "SPENT"},
		{Amount: 20, Type: "PENALTY"},
	}
	assert.Equal(t, int64(100), CreditBalance(ledger))
	assert.Equal(t, int64(0), CreditBalance(nil))
	assert.Equal(t, int64(-5), CreditBalance([]CreditEntry{{Amount: 5, Type: "REDEEMED"}}))
}
