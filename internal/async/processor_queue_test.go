package async

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/entity"
	"github.com/nilansh-07/FintelAI/internal/pipeline"
)

type fakeProcessor struct {
	calls atomic.Int32
	seen  sync.Map
}

func (f *fakeProcessor) Process(ctx context.Context, raw []byte, _ constants.Format, opts pipeline.Options) (entity.DocumentResult, error) {
	f.calls.Add(1)
	f.seen.Store(string(raw), common.RequestIDFromContext(ctx))
	return entity.DocumentResult{DocumentID: string(raw), Status: constants.DocumentSuccess, Template: string(opts.Template)}, nil
}

func writeFiles(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range n {
		paths[i] = filepath.Join(dir, string(rune('a'+i))+".png")
		require.NoError(t, os.WriteFile(paths[i], []byte{byte('a' + i)}, 0o600))
	}
	return paths
}

func TestQueueProcessesEveryJob(t *testing.T) {
	proc := &fakeProcessor{}
	var mu sync.Mutex
	var outcomes []Outcome
	q := NewProcessorQueue(proc, nil, WithWorkers(3), WithQueueSize(2), WithResultHandler(func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}))

	for _, p := range writeFiles(t, 5) {
		require.NoError(t, q.Enqueue(context.Background(), Job{Path: p, Options: pipeline.Options{Template: constants.Receipt}}))
	}
	q.Shutdown(context.Background())

	assert.EqualValues(t, 5, proc.calls.Load())
	require.Len(t, outcomes, 5)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
		assert.NotEmpty(t, o.Job.ID)
		assert.False(t, o.Job.SubmittedAt.IsZero())
		assert.Equal(t, "receipt", o.Result.Template)
		reqID, ok := proc.seen.Load(o.Result.DocumentID)
		require.True(t, ok)
		assert.Equal(t, o.Job.ID, reqID)
	}
}

func TestQueueReportsUnreadableFile(t *testing.T) {
	done := make(chan Outcome, 1)
	q := NewProcessorQueue(&fakeProcessor{}, nil, WithWorkers(1), WithResultHandler(func(o Outcome) { done <- o }))
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: filepath.Join(t.TempDir(), "missing.pdf")}))

	select {
	case o := <-done:
		assert.ErrorIs(t, o.Err, os.ErrNotExist)
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome")
	}
	q.Shutdown(context.Background())
}

func TestEnqueueAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(&fakeProcessor{}, nil)
	q.Shutdown(context.Background())
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{Path: "x"}), ErrQueueClosed)
	q.Shutdown(context.Background())
}

type blockingProcessor struct{}

func (blockingProcessor) Process(ctx context.Context, _ []byte, _ constants.Format, _ pipeline.Options) (entity.DocumentResult, error) {
	<-ctx.Done()
	return entity.DocumentResult{Status: constants.DocumentFailure}, ctx.Err()
}

func TestBaseContextCancelsRunningJobs(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	q := NewProcessorQueue(blockingProcessor{}, nil,
		WithWorkers(1),
		WithProcessTimeout(time.Minute),
		WithBaseContext(base),
		WithResultHandler(func(o Outcome) { done <- o }),
	)
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: writeFiles(t, 1)[0]}))

	cancel()
	select {
	case o := <-done:
		assert.ErrorIs(t, o.Err, context.Canceled)
		assert.Less(t, o.Elapsed, time.Minute)
	case <-time.After(2 * time.Second):
		t.Fatal("running job ignored base context cancellation")
	}
	q.Shutdown(context.Background())
}
