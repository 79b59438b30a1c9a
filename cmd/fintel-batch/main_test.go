package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/async"
	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/entity"
	"github.com/nilansh-07/FintelAI/internal/export"
	"github.com/nilansh-07/FintelAI/internal/pipeline"
)

func TestCollectorWritesLinesAndSortsRows(t *testing.T) {
	var buf bytes.Buffer
	c := &collector{out: &buf}

	c.add(async.Outcome{
		Job:     async.Job{ID: "j2", Path: "b.pdf"},
		Result:  entity.DocumentResult{Status: constants.DocumentSuccess, Pages: []entity.PageResult{{}}},
		Elapsed: 1500 * time.Millisecond,
	})
	c.add(async.Outcome{
		Job: async.Job{ID: "j1", Path: "a.png"},
		Err: errors.New("open a.png: no such file"),
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first, second summaryLine
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "success", first.Status)
	assert.Equal(t, int64(1500), first.ElapsedMS)
	assert.Equal(t, "failure", second.Status)
	assert.Equal(t, []string{"open a.png: no such file"}, second.Errors)

	rows := c.rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "a.png", rows[0].Source)
	assert.Equal(t, constants.DocumentFailure, rows[0].Result.Status)
	assert.Equal(t, "b.pdf", rows[1].Source)
}

func TestExitForRows(t *testing.T) {
	ok := export.Row{Result: entity.DocumentResult{Status: constants.DocumentSuccess}}
	partial := export.Row{Result: entity.DocumentResult{Status: constants.DocumentPartial}}
	failed := export.Row{Result: entity.DocumentResult{Status: constants.DocumentFailure}}

	assert.Equal(t, common.ExitOK, exitForRows(nil))
	assert.Equal(t, common.ExitOK, exitForRows([]export.Row{ok, partial}))
	assert.Equal(t, common.ExitExtraction, exitForRows([]export.Row{ok, failed}))
}

func TestWriteExports(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out.csv")
	xlsxPath := filepath.Join(dir, "out.xlsx")
	rows := []export.Row{{
		Source: "inv.pdf",
		Result: entity.DocumentResult{
			Status: constants.DocumentSuccess,
			Record: &entity.FinancialRecord{InvoiceNumber: "INV-2398", Date: "2024-09-12", TotalAmount: 18450},
		},
	}}

	require.NoError(t, writeExports(export.NewService(nil), rows, csvPath, xlsxPath))

	b, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "INV-2398")
	info, err := os.Stat(xlsxPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

type recordingQueue struct {
	jobs []async.Job
}

func (q *recordingQueue) Enqueue(_ context.Context, job async.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Shutdown(context.Context) {}

func TestEnqueueAllDeclaresFormatFromExtension(t *testing.T) {
	q := &recordingQueue{}
	opts := pipeline.Options{Template: constants.Receipt}

	require.NoError(t, enqueueAll(context.Background(), q, []string{"a.pdf", "b.JPG", "c.txt"}, opts))

	require.Len(t, q.jobs, 3)
	assert.Equal(t, constants.PDF, q.jobs[0].Declared)
	assert.Equal(t, constants.IMAGE, q.jobs[1].Declared)
	assert.Equal(t, constants.Format(""), q.jobs[2].Declared)
	assert.Equal(t, constants.Receipt, q.jobs[0].Options.Template)
}
