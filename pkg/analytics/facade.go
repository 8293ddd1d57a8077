package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const bundleCacheKey = "complete"

// Dashboard bundle field names, used as keys of CompleteAnalytics.Errors.
const (
	FieldOverview        = "overview"
	FieldUserStats       = "userStats"
	FieldInternshipStats = "internshipStats"
	FieldMonthlyData     = "monthlyData"
	FieldCompletionRate  = "completionRate"
)

// CompleteAnalytics is the dashboard bundle. Fields whose aggregate failed are
// nil and have an entry in Errors.
type CompleteAnalytics struct {
	Overview        *OverviewStats     `json:"overview"`
	UserStats       *UserStats         `json:"userStats"`
	InternshipStats *InternshipStats   `json:"internshipStats"`
	MonthlyData     []MonthlyDataPoint `json:"monthlyData"`
	CompletionRate  *CompletionRate    `json:"completionRate"`
	Errors          map[string]string  `json:"errors,omitempty"`
	GeneratedAt     time.Time          `json:"generatedAt"`

	errs map[string]error
}

// Partial reports whether any field failed.
func (c *CompleteAnalytics) Partial() bool {
	return len(c.errs) > 0
}

// Err joins every field error, in field name order. Nil when complete.
func (c *CompleteAnalytics) Err() error {
	if len(c.errs) == 0 {
		return nil
	}
	fields := make([]string, 0, len(c.errs))
	for f := range c.errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	joined := make([]error, 0, len(fields))
	for _, f := range fields {
		joined = append(joined, fmt.Errorf("%s: %w", f, c.errs[f]))
	}
	return errors.Join(joined...)
}

// GetCompleteAnalytics fetches the five dashboard aggregates concurrently.
// A failing aggregate leaves its field empty and is reported in Errors; the
// others are still returned. Complete bundles are cached briefly.
func (s *Service) GetCompleteAnalytics(ctx context.Context) *CompleteAnalytics {
	if s.cache != nil {
		if cached, ok := s.cache.Get(bundleCacheKey); ok {
			s.metrics.IncBundleCache(true)
			return cached
		}
		s.metrics.IncBundleCache(false)
	}

	ctx, span := s.tracer.Start(ctx, "analytics.GetCompleteAnalytics")
	defer span.End()

	result := &CompleteAnalytics{GeneratedAt: s.now()}
	fieldErrs := make([]error, 5)

	var g errgroup.Group
	g.Go(func() error {
		result.Overview, fieldErrs[0] = s.GetOverview(ctx)
		return nil
	})
	g.Go(func() error {
		result.UserStats, fieldErrs[1] = s.GetUserStats(ctx)
		return nil
	})
	g.Go(func() error {
		result.InternshipStats, fieldErrs[2] = s.GetInternshipStats(ctx)
		return nil
	})
	g.Go(func() error {
		result.MonthlyData, fieldErrs[3] = s.GetMonthlyData(ctx)
		return nil
	})
	g.Go(func() error {
		result.CompletionRate, fieldErrs[4] = s.GetCompletionRate(ctx)
		return nil
	})
	_ = g.Wait()

	fields := []string{FieldOverview, FieldUserStats, FieldInternshipStats, FieldMonthlyData, FieldCompletionRate}
	for i, err := range fieldErrs {
		if err == nil {
			continue
		}
		if result.errs == nil {
			result.errs = make(map[string]error)
			result.Errors = make(map[string]string)
		}
		result.errs[fields[i]] = err
		result.Errors[fields[i]] = err.Error()
		s.metrics.IncAggregateFailure(fields[i])
		s.logger.WithError(err).WithField("field", fields[i]).Error("Dashboard aggregate failed")
	}

	if result.Partial() {
		span.RecordError(result.Err())
		return result
	}
	if s.cache != nil {
		s.cache.Add(bundleCacheKey, result)
	}
	return result
}
