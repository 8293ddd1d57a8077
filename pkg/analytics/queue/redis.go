package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisQueue is a durable queue on two Redis lists. Jobs are pushed onto
// <name>:pending and atomically moved to <name>:processing when dequeued, where
// they stay until acked. After a crash, Recover puts unacked jobs back.
type RedisQueue struct {
	client     *redis.Client
	pending    string
	processing string
	closed     atomic.Bool
}

// NewRedisQueue creates a queue named name. The client is not closed by Close.
func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{
		client:     client,
		pending:    name + ":pending",
		processing: name + ":processing",
	}
}

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.pending, payload).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue implements Queue.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}
	if wait <= 0 {
		wait = time.Second
	}

	payload, err := q.client.BRPopLPush(ctx, q.pending, q.processing, wait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		// Unreadable payloads would be recovered forever; drop them here.
		_ = q.client.LRem(ctx, q.processing, 1, payload).Err()
		return nil, fmt.Errorf("decode job: %w", err)
	}
	job.raw = payload
	return &job, nil
}

// Ack removes job from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	if job.raw == "" {
		return nil
	}
	if err := q.client.LRem(ctx, q.processing, 1, job.raw).Err(); err != nil {
		return fmt.Errorf("ack job %s: %w", job.ID, err)
	}
	return nil
}

// Len implements Queue.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.pending).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// Recover moves every job left in the processing list back to pending and
// returns how many were moved. Call it at startup before any worker runs.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.RPopLPush(ctx, q.processing, q.pending).Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover processing jobs: %w", err)
		}
		moved++
	}
}

// Close implements Queue.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}
