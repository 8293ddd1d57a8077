package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueFull is returned when a bounded queue cannot take another job.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned by operations on a closed queue.
	ErrQueueClosed = errors.New("queue is closed")
)

// Job asks for one user's snapshot to be recomputed.
type Job struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Event      string    `json:"event"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueuedAt"`

	// raw is the exact payload read from a backend, needed to ack it.
	raw string
}

// NewJob creates a job for userID triggered by event.
func NewJob(userID, event string) *Job {
	return &Job{
		ID:         uuid.New().String(),
		UserID:     userID,
		Event:      event,
		EnqueuedAt: time.Now().UTC(),
	}
}

// retry returns a copy for the next attempt.
func (j *Job) retry() *Job {
	next := *j
	next.Attempts++
	next.EnqueuedAt = time.Now().UTC()
	next.raw = ""
	return &next
}

// Queue is a FIFO of recompute jobs with at-least-once delivery: a dequeued
// job stays owned by the consumer until Ack.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	// Dequeue waits up to wait for a job. It returns a nil job when none
	// arrived in time.
	Dequeue(ctx context.Context, wait time.Duration) (*Job, error)
	Ack(ctx context.Context, job *Job) error
	// Len is the number of jobs waiting to be dequeued.
	Len(ctx context.Context) (int64, error)
	Close() error
}
