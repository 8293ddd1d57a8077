package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

func TestGetOverview_Growth(t *testing.T) {
	repo := newFakeRepo()

	var mu sync.Mutex
	var cutoffs []time.Time
	repo.countFn = func(e Entity, f Filter) (int64, error) {
		current := map[Entity]int64{EntityUsers: 125, EntityInternships: 20, EntityApplications: 50, EntityCertificates: 10}
		previous := map[Entity]int64{EntityUsers: 100, EntityInternships: 20, EntityApplications: 0, EntityCertificates: 8}
		if f.To.IsZero() {
			return current[e], nil
		}
		mu.Lock()
		cutoffs = append(cutoffs, f.To)
		mu.Unlock()
		return previous[e], nil
	}

	svc := NewService(repo, WithClock(fixedClock(testNow)))
	overview, err := svc.GetOverview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(125), overview.TotalUsers)
	assert.Equal(t, int64(50), overview.TotalApplications)
	assert.Equal(t, 25.0, overview.UserGrowth)
	assert.Equal(t, 0.0, overview.InternshipGrowth)
	assert.Equal(t, 0.0, overview.ApplicationGrowth)
	assert.Equal(t, 25.0, overview.CertificateGrowth)

	require.Len(t, cutoffs, 4)
	for _, c := range cutoffs {
		assert.Equal(t, time.Date(2024, time.February, 15, 10, 30, 0, 0, time.UTC), c)
	}
}

func TestGetOverview_Error(t *testing.T) {
	repo := newFakeRepo()
	boom := errors.New("connection refused")
	repo.countFn = func(e Entity, f Filter) (int64, error) {
		if e == EntityCertificates {
			return 0, boom
		}
		return 1, nil
	}

	_, err := NewService(repo).GetOverview(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "count certificates")
}

func TestGetUserStats(t *testing.T) {
	repo := newFakeRepo()
	repo.countFn = func(e Entity, f Filter) (int64, error) {
		assert.Equal(t, EntityUsers, e)
		switch {
		case assert.ObjectsAreEqual(InternRoles, f.Roles):
			return 40, nil
		case assert.ObjectsAreEqual(MentorRoles, f.Roles):
			return 6, nil
		case assert.ObjectsAreEqual(AdminRoles, f.Roles):
			return 2, nil
		}
		return 0, errors.New("unexpected roles")
	}
	repo.activeFn = func(since time.Time) (int64, error) {
		switch testNow.Sub(since) {
		case 24 * time.Hour:
			return 3, nil
		case 7 * 24 * time.Hour:
			return 12, nil
		case 30 * 24 * time.Hour:
			return 31, nil
		}
		return 0, errors.New("unexpected window")
	}

	stats, err := NewService(repo, WithClock(fixedClock(testNow))).GetUserStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &UserStats{
		Interns:       40,
		Mentors:       6,
		Admins:        2,
		DailyActive:   3,
		WeeklyActive:  12,
		MonthlyActive: 31,
	}, stats)
}

func TestGetInternshipStats(t *testing.T) {
	repo := newFakeRepo()
	repo.countFn = func(e Entity, f Filter) (int64, error) {
		switch {
		case e == EntityInternships && f.Status == InternshipActive:
			return 7, nil
		case e == EntityInternships && f.Status == InternshipCompleted:
			return 4, nil
		case e == EntityInternships && f.Status == InternshipInactive:
			return 2, nil
		case e == EntityApplications && f.Status == ApplicationPending:
			return 9, nil
		}
		return 0, errors.New("unexpected count")
	}

	stats, err := NewService(repo).GetInternshipStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &InternshipStats{Active: 7, Completed: 4, PendingApplications: 9, Inactive: 2}, stats)
}

func TestGetCompletionRate(t *testing.T) {
	tests := []struct {
		name        string
		total       int64
		completed   int64
		wantRate    float64
		wantMessage string
	}{
		{"four of ten", 10, 4, 40.0, "4 out of 10 finished internships"},
		{"no internships", 0, 0, 0, "0 out of 0 finished internships"},
		{"all done", 3, 3, 100.0, "3 out of 3 finished internships"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			repo.countFn = func(e Entity, f Filter) (int64, error) {
				if f.Status == InternshipCompleted {
					return tt.completed, nil
				}
				return tt.total, nil
			}

			rate, err := NewService(repo).GetCompletionRate(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantRate, rate.Rate)
			assert.Equal(t, tt.completed, rate.Completed)
			assert.Equal(t, tt.total, rate.Total)
			assert.Equal(t, tt.wantMessage, rate.Description)
		})
	}
}
