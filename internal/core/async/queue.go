// Package async runs submitted batch jobs on a small background worker set,
// so submission returns immediately with a job identifier.
package async

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/DruboPaul/web-surveyscriber/internal/core"
)

type BatchQueue struct {
	proc    *core.Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan *core.BatchJob
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*BatchQueue)

func WithWorkers(n int) Option {
	return func(q *BatchQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *BatchQueue) {
		if n > 0 {
			q.ch = make(chan *core.BatchJob, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *BatchQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewBatchQueue(proc *core.Processor, logger *slog.Logger, opts ...Option) *BatchQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &BatchQueue{
		proc:    proc,
		logger:  logger,
		workers: 2,
		timeout: 30 * time.Minute,
		ch:      make(chan *core.BatchJob, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *BatchQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					err := q.proc.ProcessBatch(ctx, job)
					cancel()

					if err != nil {
						q.logger.Error("batch processing failed", "worker_id", workerID, "job_id", job.JobID, "error", err)
					} else {
						q.logger.Info("batch processed", "worker_id", workerID, "job_id", job.JobID)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *BatchQueue) Enqueue(_ context.Context, job *core.BatchJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.JobID)
		return nil
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued batch for processing", "job_id", job.JobID, "batch_id", job.BatchID)
	default:
		q.logger.Warn("queue full, applying backpressure", "job_id", job.JobID)
		q.ch <- job
	}
	return nil
}

func (q *BatchQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
