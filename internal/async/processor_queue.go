package async

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/entity"
	"github.com/nilansh-07/FintelAI/internal/pipeline"
)

// Processor is the document entry point the workers call.
type Processor interface {
	Process(ctx context.Context, raw []byte, declared constants.Format, opts pipeline.Options) (entity.DocumentResult, error)
}

// ProcessorQueue runs jobs on a fixed pool of workers.
type ProcessorQueue struct {
	proc     Processor
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	onResult func(Outcome)
	base     context.Context

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithBaseContext parents every job context on ctx, so cancelling it stops
// running documents.
func WithBaseContext(ctx context.Context) Option {
	return func(q *ProcessorQueue) {
		if ctx != nil {
			q.base = ctx
		}
	}
}

// WithResultHandler registers a callback invoked from worker goroutines
// once per job. It must be safe for concurrent use.
func WithResultHandler(f func(Outcome)) Option {
	return func(q *ProcessorQueue) { q.onResult = f }
}

func NewProcessorQueue(proc Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan Job, 256),
		base:    context.Background(),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.start", "worker_id", workerID)
				for job := range q.ch {
					q.run(workerID, job)
				}
				q.logger.Debug("queue.worker.stop", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(q.base, q.timeout)
	defer cancel()
	ctx = common.WithRequestID(ctx, job.ID)

	out := Outcome{Job: job, WorkerID: workerID}
	raw, err := os.ReadFile(job.Path)
	if err != nil {
		out.Err = err
	} else {
		out.Result, out.Err = q.proc.Process(ctx, raw, job.Declared, job.Options)
	}
	out.Elapsed = time.Since(start)

	if out.Err != nil {
		q.logger.Error("queue.job.failed",
			"worker_id", workerID,
			"job_id", job.ID,
			"path", job.Path,
			"code", common.ErrorCode(out.Err),
			"error", out.Err,
			"elapsed_ms", out.Elapsed.Milliseconds(),
		)
	} else {
		q.logger.Info("queue.job.done",
			"worker_id", workerID,
			"job_id", job.ID,
			"path", job.Path,
			"status", out.Result.Status,
			"pages", len(out.Result.Pages),
			"elapsed_ms", out.Elapsed.Milliseconds(),
		)
	}
	if q.onResult != nil {
		q.onResult(out)
	}
}

// Enqueue blocks when the buffer is full.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.rejected", "path", job.Path)
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queue.enqueued", "job_id", job.ID, "path", job.Path)
		return nil
	default:
	}
	q.logger.Warn("queue.full", "job_id", job.ID, "path", job.Path)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
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
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
}
