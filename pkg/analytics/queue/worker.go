package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/internhub/internhub/pkg/async"
	"github.com/internhub/internhub/pkg/observability"
)

// Handler processes one job. Returning an error wrapped with Permanent drops
// the job instead of retrying it.
type Handler func(ctx context.Context, job *Job) error

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Concurrency int
	JobTimeout  time.Duration
	PollWait    time.Duration
	Retry       RetryConfig
}

// DefaultWorkerConfig returns the default worker configuration
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency: 4,
		JobTimeout:  30 * time.Second,
		PollWait:    time.Second,
		Retry:       DefaultRetryConfig(),
	}
}

// Worker pulls jobs from a Queue and runs them on a worker pool. Failed jobs
// are put back after a backoff delay until the retry policy gives up.
type Worker struct {
	queue   Queue
	handler Handler
	policy  *RetryPolicy
	config  WorkerConfig
	logger  *observability.Logger
	metrics *observability.Metrics

	pool   *async.WorkerPool
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

// NewWorker creates a worker. It does nothing until Start.
func NewWorker(q Queue, handler Handler, config WorkerConfig, logger *observability.Logger, metrics *observability.Metrics) *Worker {
	def := DefaultWorkerConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}
	if config.PollWait <= 0 {
		config.PollWait = def.PollWait
	}
	if logger == nil {
		logger = observability.DefaultLogger()
	}

	return &Worker{
		queue:   q,
		handler: handler,
		policy:  NewRetryPolicy(config.Retry),
		config:  config,
		logger:  logger.WithField("component", "analytics_queue_worker"),
		metrics: metrics,
		timers:  make(map[*time.Timer]struct{}),
	}
}

// Start launches the fetch loop. Jobs run until Stop or until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	fetchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.pool = async.NewWorkerPool(ctx, w.logger, w.config.Concurrency, "analytics recompute job", w.config.JobTimeout)

	go func() {
		defer close(w.done)
		defer observability.RecoverPanic(w.logger, "analytics queue fetch loop")
		w.fetchLoop(fetchCtx)
	}()

	w.logger.Infof("Queue worker started with %d workers", w.config.Concurrency)
}

// Stop ends the fetch loop, waits up to timeout for running jobs and cancels
// pending retries. Jobs whose retry was cancelled stay unacked, so a durable
// queue redelivers them after Recover.
func (w *Worker) Stop(timeout time.Duration) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	<-w.done

	err := w.pool.Shutdown(timeout)

	w.mu.Lock()
	for t := range w.timers {
		t.Stop()
	}
	w.timers = make(map[*time.Timer]struct{})
	w.mu.Unlock()

	w.logger.Info("Queue worker stopped")
	return err
}

func (w *Worker) fetchLoop(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := w.queue.Dequeue(ctx, w.config.PollWait)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			w.logger.WithError(err).Warn("Dequeue failed")
			select {
			case <-time.After(w.config.PollWait):
			case <-ctx.Done():
				return
			}
			continue
		}
		if job == nil {
			if n, err := w.queue.Len(ctx); err == nil {
				w.metrics.SetQueueDepth(n)
			}
			continue
		}

		if err := w.pool.Submit(ctx, func(jobCtx context.Context) error {
			w.process(jobCtx, job)
			return nil
		}); err != nil {
			w.logger.WithField("job_id", job.ID).WithError(err).Warn("Job left unacked, worker is stopping")
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	ctx = observability.WithUserID(ctx, job.UserID)
	ctx = observability.WithOperation(ctx, job.Event)
	ctx = observability.WithLogger(ctx, w.logger)
	entry := observability.FromContext(ctx).WithField("job_id", job.ID)

	err := w.handler(ctx, job)
	if err == nil {
		w.ack(job, entry)
		w.metrics.IncQueueJob("succeeded")
		return
	}

	attempts := job.Attempts + 1
	if w.policy.ShouldRetry(attempts, err) {
		delay := w.policy.NextRetryDelay(attempts)
		entry.WithError(err).Warnf("Job failed, retrying in %s (attempt %d)", delay, attempts)
		w.scheduleRetry(job, delay, entry)
		w.metrics.IncQueueJob("retried")
		return
	}

	entry.WithError(err).WithField("attempts", attempts).Error("Job dropped")
	w.ack(job, entry)
	w.metrics.IncQueueJob("dropped")
}

// scheduleRetry enqueues a copy of job after delay and then acks the original,
// so the job is never absent from the queue.
func (w *Worker) scheduleRetry(job *Job, delay time.Duration, entry *observability.Logger) {
	next := job.retry()

	w.mu.Lock()
	defer w.mu.Unlock()

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.timers, timer)
		w.mu.Unlock()

		if err := w.queue.Enqueue(context.Background(), next); err != nil {
			entry.WithError(err).Error("Re-enqueue failed")
			return
		}
		w.ack(job, entry)
	})
	w.timers[timer] = struct{}{}
}

func (w *Worker) ack(job *Job, entry *observability.Logger) {
	if err := w.queue.Ack(context.Background(), job); err != nil {
		entry.WithError(err).Warn("Ack failed")
	}
}
