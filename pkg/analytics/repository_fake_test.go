package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// fakeRepo is an in-memory Repository. Function fields override the default
// behavior for a single method.
type fakeRepo struct {
	mu sync.Mutex

	countFn     func(Entity, Filter) (int64, error)
	activeFn    func(time.Time) (int64, error)
	listUsersFn func(role string) ([]string, error)
	tasksFn     func(ctx context.Context, userID string) (TaskCounts, error)

	users       map[string]string
	tasks       map[string]TaskCounts
	submissions map[string][]Submission
	ledger      map[string][]CreditEntry
	snapshots   map[string]*StudentAnalyticsSnapshot

	countCalls   int
	taskCalls    int
	upsertCalls  int
	nextID       int
	deleteCutoff time.Time
	deleteResult int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:       make(map[string]string),
		tasks:       make(map[string]TaskCounts),
		submissions: make(map[string][]Submission),
		ledger:      make(map[string][]CreditEntry),
		snapshots:   make(map[string]*StudentAnalyticsSnapshot),
	}
}

func (r *fakeRepo) addUser(id, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = role
}

func (r *fakeRepo) snapshot(userID string) *StudentAnalyticsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.snapshots[userID]; ok {
		cp := *s
		return &cp
	}
	return nil
}

func (r *fakeRepo) Count(ctx context.Context, entity Entity, filter Filter) (int64, error) {
	r.mu.Lock()
	r.countCalls++
	fn := r.countFn
	r.mu.Unlock()
	if fn != nil {
		return fn(entity, filter)
	}
	return 0, nil
}

func (r *fakeRepo) CountActiveUsers(ctx context.Context, since time.Time) (int64, error) {
	if r.activeFn != nil {
		return r.activeFn(since)
	}
	return 0, nil
}

func (r *fakeRepo) UserExists(ctx context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[userID]
	return ok, nil
}

func (r *fakeRepo) ListUserIDsByRole(ctx context.Context, role string) ([]string, error) {
	if r.listUsersFn != nil {
		return r.listUsersFn(role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, rl := range r.users {
		if rl == role {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *fakeRepo) CountTasksByStatus(ctx context.Context, userID string) (TaskCounts, error) {
	r.mu.Lock()
	r.taskCalls++
	fn := r.tasksFn
	counts := r.tasks[userID]
	r.mu.Unlock()
	if fn != nil {
		return fn(ctx, userID)
	}
	return counts, nil
}

func (r *fakeRepo) ListSubmissions(ctx context.Context, userID string) ([]Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Submission(nil), r.submissions[userID]...), nil
}

func (r *fakeRepo) ListCreditHistory(ctx context.Context, userID string) ([]CreditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CreditEntry(nil), r.ledger[userID]...), nil
}

func (r *fakeRepo) UpsertSnapshot(ctx context.Context, snap *StudentAnalyticsSnapshot) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertCalls++

	stored := *snap
	if existing, ok := r.snapshots[snap.UserID]; ok {
		if existing.ComputedAt.After(snap.ComputedAt) {
			return false, nil
		}
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		r.nextID++
		stored.ID = fmt.Sprintf("snap-%d", r.nextID)
		stored.CreatedAt = snap.UpdatedAt
	}
	r.snapshots[snap.UserID] = &stored
	return true, nil
}

func (r *fakeRepo) GetSnapshot(ctx context.Context, userID string) (*StudentAnalyticsSnapshot, error) {
	return r.snapshot(userID), nil
}

func (r *fakeRepo) DeleteCreditHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteCutoff = cutoff
	return r.deleteResult, nil
}

// tickingClock returns a clock that advances one second per call.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
