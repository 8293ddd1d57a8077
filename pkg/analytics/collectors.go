package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// countSet is the four headline totals shared by the overview and each
// monthly bucket.
type countSet struct {
	users, internships, applications, certificates int64
}

func (s *Service) countAll(ctx context.Context, filter Filter) (countSet, error) {
	var c countSet
	g, ctx := errgroup.WithContext(ctx)

	targets := []struct {
		entity Entity
		dst    *int64
	}{
		{EntityUsers, &c.users},
		{EntityInternships, &c.internships},
		{EntityApplications, &c.applications},
		{EntityCertificates, &c.certificates},
	}
	for _, t := range targets {
		g.Go(func() error {
			n, err := s.repo.Count(ctx, t.entity, filter)
			if err != nil {
				return fmt.Errorf("count %s: %w", t.entity, err)
			}
			*t.dst = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return countSet{}, err
	}
	return c, nil
}

// GetOverview returns platform totals with growth against the totals as of
// one month ago.
func (s *Service) GetOverview(ctx context.Context) (*OverviewStats, error) {
	ctx, span := s.tracer.Start(ctx, "analytics.GetOverview")
	defer span.End()

	cutoff := s.now().AddDate(0, -1, 0)

	var current, previous countSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.countAll(gctx, Filter{})
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = s.countAll(gctx, Filter{To: cutoff})
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("overview: %w", err)
	}

	return &OverviewStats{
		TotalUsers:        current.users,
		TotalInternships:  current.internships,
		TotalApplications: current.applications,
		TotalCertificates: current.certificates,
		UserGrowth:        Growth(current.users, previous.users),
		InternshipGrowth:  Growth(current.internships, previous.internships),
		ApplicationGrowth: Growth(current.applications, previous.applications),
		CertificateGrowth: Growth(current.certificates, previous.certificates),
	}, nil
}

// GetUserStats returns role-group counts and daily, weekly and monthly
// active users.
func (s *Service) GetUserStats(ctx context.Context) (*UserStats, error) {
	ctx, span := s.tracer.Start(ctx, "analytics.GetUserStats")
	defer span.End()

	now := s.now()
	var stats UserStats
	g, gctx := errgroup.WithContext(ctx)

	roleCounts := []struct {
		roles []string
		dst   *int64
	}{
		{InternRoles, &stats.Interns},
		{MentorRoles, &stats.Mentors},
		{AdminRoles, &stats.Admins},
	}
	for _, rc := range roleCounts {
		g.Go(func() error {
			n, err := s.repo.Count(gctx, EntityUsers, Filter{Roles: rc.roles})
			if err != nil {
				return fmt.Errorf("count users %v: %w", rc.roles, err)
			}
			*rc.dst = n
			return nil
		})
	}

	windows := []struct {
		since time.Time
		dst   *int64
	}{
		{now.Add(-24 * time.Hour), &stats.DailyActive},
		{now.AddDate(0, 0, -7), &stats.WeeklyActive},
		{now.AddDate(0, 0, -30), &stats.MonthlyActive},
	}
	for _, w := range windows {
		g.Go(func() error {
			n, err := s.repo.CountActiveUsers(gctx, w.since)
			if err != nil {
				return fmt.Errorf("count active users since %s: %w", w.since.Format(time.RFC3339), err)
			}
			*w.dst = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("user stats: %w", err)
	}
	return &stats, nil
}

// GetInternshipStats counts internships by state plus pending applications.
func (s *Service) GetInternshipStats(ctx context.Context) (*InternshipStats, error) {
	ctx, span := s.tracer.Start(ctx, "analytics.GetInternshipStats")
	defer span.End()

	var stats InternshipStats
	g, gctx := errgroup.WithContext(ctx)

	counts := []struct {
		entity Entity
		status string
		dst    *int64
	}{
		{EntityInternships, InternshipActive, &stats.Active},
		{EntityInternships, InternshipCompleted, &stats.Completed},
		{EntityInternships, InternshipInactive, &stats.Inactive},
		{EntityApplications, ApplicationPending, &stats.PendingApplications},
	}
	for _, c := range counts {
		g.Go(func() error {
			n, err := s.repo.Count(gctx, c.entity, Filter{Status: c.status})
			if err != nil {
				return fmt.Errorf("count %s %s: %w", c.status, c.entity, err)
			}
			*c.dst = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("internship stats: %w", err)
	}
	return &stats, nil
}

// GetCompletionRate is completed internships over all internships.
func (s *Service) GetCompletionRate(ctx context.Context) (*CompletionRate, error) {
	ctx, span := s.tracer.Start(ctx, "analytics.GetCompletionRate")
	defer span.End()

	var completed, total int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		completed, err = s.repo.Count(gctx, EntityInternships, Filter{Status: InternshipCompleted})
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, EntityInternships, Filter{})
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("completion rate: %w", err)
	}

	return &CompletionRate{
		Rate:        Percentage(completed, total),
		Completed:   completed,
		Total:       total,
		Description: fmt.Sprintf("%d out of %d finished internships", completed, total),
	}, nil
}
