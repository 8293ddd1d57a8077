package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// MonthCount is the number of calendar months in the dashboard series.
const MonthCount = 6

// MonthWindow is one half-open calendar month, [Start, End).
type MonthWindow struct {
	Label string
	Start time.Time
	End   time.Time
}

// MonthWindows returns the last MonthCount calendar months ending with the
// month containing now, oldest first, in now's location.
func MonthWindows(now time.Time) []MonthWindow {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	windows := make([]MonthWindow, 0, MonthCount)
	for i := MonthCount - 1; i >= 0; i-- {
		start := firstOfMonth.AddDate(0, -i, 0)
		windows = append(windows, MonthWindow{
			Label: start.Format("Jan"),
			Start: start,
			End:   start.AddDate(0, 1, 0),
		})
	}
	return windows
}

// GetMonthlyData counts new users, internships, applications and certificates
// per month for the last six months, oldest first.
func (s *Service) GetMonthlyData(ctx context.Context) ([]MonthlyDataPoint, error) {
	ctx, span := s.tracer.Start(ctx, "analytics.GetMonthlyData")
	defer span.End()

	windows := MonthWindows(s.now())
	points := make([]MonthlyDataPoint, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.bucketConcurrency)
	for i, w := range windows {
		g.Go(func() error {
			c, err := s.countAll(gctx, Filter{From: w.Start, To: w.End})
			if err != nil {
				return fmt.Errorf("month %s: %w", w.Start.Format("2006-01"), err)
			}
			points[i] = MonthlyDataPoint{
				Month:        w.Label,
				Users:        c.users,
				Internships:  c.internships,
				Applications: c.applications,
				Certificates: c.certificates,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("monthly data: %w", err)
	}
	return points, nil
}
