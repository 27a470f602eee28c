package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	Logger     *zap.Logger
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines. The
// registrar uses it for fire-and-forget work (notification fan-out); handler
// failures are logged and dropped, never retried into the caller's path.
type Queue struct {
	name    string
	handler Handler
	workers int
	logger  *zap.Logger

	jobs   chan Job
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:    name,
		handler: handler,
		workers: cfg.Workers,
		logger:  cfg.Logger,
		jobs:    make(chan Job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.once.Do(func() {
		ctx, q.cancel = context.WithCancel(ctx)
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.worker(ctx, i+1)
		}
		q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
	})
}

// Stop cancels workers and waits for them to exit.
func (q *Queue) Stop() {
	if q.cancel == nil {
		return
	}
	q.cancel()
	q.wg.Wait()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name)
}

// TryEnqueue offers a job without blocking. It returns an error when the
// buffer is full so callers can decide whether dropping is acceptable.
func (q *Queue) TryEnqueue(job Job) error {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s: buffer full", q.name)
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			if err := q.handler(ctx, job); err != nil {
				q.logger.Sugar().Warnw("job failed",
					"queue", q.name, "worker", id, "job", job.ID, "type", job.Type, "error", err)
			}
		}
	}
}
