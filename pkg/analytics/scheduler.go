package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/internhub/internhub/pkg/observability"
)

// SchedulerConfig configures the background recompute scheduler.
type SchedulerConfig struct {
	// BatchSize users are recomputed concurrently; batches run one after another.
	BatchSize int
	// BatchDelay is the pause between batches, never after the last.
	BatchDelay time.Duration
	// EligibleRole selects the users a full pass covers.
	EligibleRole string
	// RetentionDays enables the credit ledger cleanup when positive.
	RetentionDays int
	// CleanupSchedule is the cron expression of the cleanup job.
	CleanupSchedule string
	// CleanupTimeout bounds one cleanup run.
	CleanupTimeout time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		BatchSize:       10,
		BatchDelay:      100 * time.Millisecond,
		EligibleRole:    RoleIntern,
		CleanupSchedule: "30 3 * * *",
		CleanupTimeout:  5 * time.Minute,
	}
}

// PassResult describes one full recompute pass.
type PassResult struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Users      int       `json:"users"`
	Batches    int       `json:"batches"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    bool      `json:"skipped,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	IsRunning       bool        `json:"isRunning"`
	HasTimerArmed   bool        `json:"hasTimerArmed"`
	PassInFlight    bool        `json:"passInFlight"`
	IntervalMinutes int         `json:"intervalMinutes,omitempty"`
	NextRunAt       *time.Time  `json:"nextRunAt,omitempty"`
	LastPass        *PassResult `json:"lastPass,omitempty"`
}

// Scheduler periodically recomputes every eligible user's snapshot. It is
// stopped until Start and only one full pass runs at a time.
type Scheduler struct {
	repo    Repository
	updater *Updater
	config  SchedulerConfig
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu           sync.Mutex
	cron         *cron.Cron
	passEntry    cron.EntryID
	cleanupEntry cron.EntryID
	running      bool
	interval     int
	passDone     chan struct{}
	passSeq      uint64
	lastPass     *PassResult
	lastPassSeq  uint64
}

// NewScheduler creates a stopped scheduler
func NewScheduler(repo Repository, updater *Updater, config SchedulerConfig, opts ...Option) *Scheduler {
	def := DefaultSchedulerConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.BatchDelay < 0 {
		config.BatchDelay = 0
	}
	if config.EligibleRole == "" {
		config.EligibleRole = def.EligibleRole
	}
	if config.CleanupSchedule == "" {
		config.CleanupSchedule = def.CleanupSchedule
	}
	if config.CleanupTimeout <= 0 {
		config.CleanupTimeout = def.CleanupTimeout
	}

	o := buildOptions(opts)
	return &Scheduler{
		repo:    repo,
		updater: updater,
		config:  config,
		logger:  o.logger.WithField("component", "analytics_scheduler"),
		metrics: o.metrics,
		now:     o.now,
	}
}

// Start runs one full pass immediately in the background and then one every
// intervalMinutes. Starting a running scheduler does nothing.
func (s *Scheduler) Start(intervalMinutes int) error {
	if intervalMinutes <= 0 {
		return fmt.Errorf("start scheduler every %d minutes: %w", intervalMinutes, ErrInvalidInterval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Infof("Scheduler already running every %d minutes", s.interval)
		return nil
	}

	c := cron.New()
	passEntry, err := c.AddFunc(fmt.Sprintf("@every %dm", intervalMinutes), s.tick)
	if err != nil {
		return fmt.Errorf("schedule analytics pass: %w", err)
	}

	var cleanupEntry cron.EntryID
	if s.config.RetentionDays > 0 {
		cleanupEntry, err = c.AddFunc(s.config.CleanupSchedule, s.cleanupTick)
		if err != nil {
			return fmt.Errorf("schedule credit history cleanup: %w", err)
		}
	}

	c.Start()
	s.cron = c
	s.passEntry = passEntry
	s.cleanupEntry = cleanupEntry
	s.running = true
	s.interval = intervalMinutes
	s.metrics.SetSchedulerRunning(true)

	s.logger.Infof("Scheduler started, full pass every %d minutes", intervalMinutes)

	go s.tick()
	return nil
}

// Stop disarms the timer. A pass already running is left to finish; use
// StopAndWait to wait for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cron.Remove(s.passEntry)
	if s.cleanupEntry != 0 {
		s.cron.Remove(s.cleanupEntry)
	}
	s.cron.Stop()

	s.cron = nil
	s.passEntry = 0
	s.cleanupEntry = 0
	s.running = false
	s.metrics.SetSchedulerRunning(false)

	s.logger.Info("Scheduler stopped")
}

// StopAndWait stops the scheduler and waits for an in-flight pass.
func (s *Scheduler) StopAndWait(ctx context.Context) error {
	s.Stop()

	s.mu.Lock()
	done := s.passDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForceUpdate runs a full pass without touching the timer, whatever state the
// scheduler is in. When a pass is already running it waits for it and then
// runs one more, so changes made during that pass are picked up. Concurrent
// forced requests share the follow-up pass.
func (s *Scheduler) ForceUpdate(ctx context.Context) (PassResult, error) {
	s.logger.Info("Forced analytics pass requested")

	s.mu.Lock()
	requestedAt := s.passSeq
	s.mu.Unlock()

	for {
		s.mu.Lock()
		done := s.passDone
		// Passes are numbered as they start, so a finished pass numbered past
		// requestedAt began after the request and already covers it.
		if s.lastPass != nil && s.lastPassSeq > requestedAt {
			last := *s.lastPass
			s.mu.Unlock()
			if last.Error != "" {
				return last, errors.New(last.Error)
			}
			return last, nil
		}
		s.mu.Unlock()

		if done == nil {
			result, err := s.RunFullPass(ctx)
			if result.Skipped {
				continue
			}
			return result, err
		}

		select {
		case <-done:
		case <-ctx.Done():
			return PassResult{}, fmt.Errorf("wait for running analytics pass: %w", ctx.Err())
		}
	}
}

// Status returns the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		IsRunning:     s.running,
		HasTimerArmed: s.running && s.passEntry != 0,
		PassInFlight:  s.passDone != nil,
	}
	if s.running {
		st.IntervalMinutes = s.interval
		if next := s.cron.Entry(s.passEntry).Next; !next.IsZero() {
			st.NextRunAt = &next
		}
	}
	if s.lastPass != nil {
		last := *s.lastPass
		st.LastPass = &last
	}
	return st
}

func (s *Scheduler) tick() {
	defer observability.RecoverPanic(s.logger, "analytics scheduled pass")

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return
	}

	if _, err := s.RunFullPass(context.Background()); err != nil {
		s.logger.WithError(err).Error("Scheduled analytics pass failed")
	}
}

// RunFullPass recomputes every eligible user in sequential batches.
func (s *Scheduler) RunFullPass(ctx context.Context) (result PassResult, err error) {
	s.mu.Lock()
	if s.passDone != nil {
		s.mu.Unlock()
		s.logger.Info("Analytics pass already in flight, skipping")
		return PassResult{StartedAt: s.now(), Skipped: true}, nil
	}
	done := make(chan struct{})
	s.passDone = done
	s.passSeq++
	seq := s.passSeq
	s.mu.Unlock()

	begin := time.Now()
	result.StartedAt = s.now()

	defer func() {
		result.FinishedAt = s.now()
		status := "success"
		if err != nil {
			status = "error"
			result.Error = err.Error()
		}
		s.metrics.ObservePass(status, time.Since(begin), result.Succeeded, result.Failed)

		s.mu.Lock()
		last := result
		s.lastPass = &last
		s.lastPassSeq = seq
		s.passDone = nil
		s.mu.Unlock()
		close(done)
	}()
	defer func() {
		if perr := observability.PanicError(recover()); perr != nil {
			s.logger.WithError(perr).Error("PANIC recovered in analytics pass")
			err = perr
		}
	}()

	userIDs, err := s.repo.ListUserIDsByRole(ctx, s.config.EligibleRole)
	if err != nil {
		return result, fmt.Errorf("list %s users: %w", s.config.EligibleRole, err)
	}
	result.Users = len(userIDs)

	for start := 0; start < len(userIDs); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(userIDs))

		batch := s.updater.BatchUpdateAnalytics(ctx, userIDs[start:end])
		result.Batches++
		result.Succeeded += batch.Succeeded
		result.Failed += batch.Failed

		if end < len(userIDs) && s.config.BatchDelay > 0 {
			select {
			case <-time.After(s.config.BatchDelay):
			case <-ctx.Done():
				return result, fmt.Errorf("analytics pass interrupted after %d batches: %w", result.Batches, ctx.Err())
			}
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"users":     result.Users,
		"batches":   result.Batches,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"duration":  time.Since(begin).String(),
	}).Info("Analytics pass complete")

	return result, nil
}

func (s *Scheduler) cleanupTick() {
	defer observability.RecoverPanic(s.logger, "credit history cleanup")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.CleanupTimeout)
	defer cancel()

	if _, err := s.CleanupOldData(ctx, s.config.RetentionDays); err != nil {
		s.logger.WithError(err).Error("Credit history cleanup failed")
	}
}

// CleanupOldData deletes credit ledger rows older than daysToKeep days. Later
// snapshots no longer count the deleted rows.
func (s *Scheduler) CleanupOldData(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		return 0, fmt.Errorf("cleanup keeping %d days: %w", daysToKeep, ErrInvalidRetention)
	}

	cutoff := s.now().AddDate(0, 0, -daysToKeep)
	deleted, err := s.repo.DeleteCreditHistoryBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete credit history before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	s.metrics.AddCleanupDeleted(deleted)
	s.logger.WithField("deleted", deleted).WithField("cutoff", cutoff.Format(time.RFC3339)).Info("Credit history cleanup complete")
	return deleted, nil
}
