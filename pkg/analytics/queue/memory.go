package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is a bounded in-process queue. Jobs are lost on restart, and Ack
// is a no-op.
type MemoryQueue struct {
	jobs chan *Job
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue creates a queue holding at most capacity pending jobs.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryQueue{
		jobs: make(chan *Job, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue adds job without blocking.
func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue implements Queue.
func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case job := <-q.jobs:
		return job, nil
	case <-timer.C:
		return nil, nil
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ack implements Queue.
func (q *MemoryQueue) Ack(ctx context.Context, job *Job) error {
	return nil
}

// Len implements Queue.
func (q *MemoryQueue) Len(ctx context.Context) (int64, error) {
	return int64(len(q.jobs)), nil
}

// Close stops accepting jobs and wakes blocked consumers. Pending jobs are
// dropped.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
