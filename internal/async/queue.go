package async

import (
	"context"
	"errors"
	"time"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/entity"
	"github.com/nilansh-07/FintelAI/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("async: queue is shutting down")

// Job is one file to extract.
type Job struct {
	ID          string
	Path        string
	Declared    constants.Format // empty = sniff
	Options     pipeline.Options
	SubmittedAt time.Time
}

// Outcome is delivered once per enqueued job.
type Outcome struct {
	Job      Job
	Result   entity.DocumentResult
	Err      error
	WorkerID int
	Elapsed  time.Duration
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
