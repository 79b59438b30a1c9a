package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/app"
	"github.com/nilansh-07/FintelAI/internal/async"
	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/export"
	"github.com/nilansh-07/FintelAI/internal/ingest"
	"github.com/nilansh-07/FintelAI/internal/pipeline"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		dir        = flag.String("dir", "", "directory to scan for documents (recursive)")
		xlsxOut    = flag.String("xlsx", "", "write an XLSX workbook of all results to this path")
		csvOut     = flag.String("csv", "", "write a CSV of all results to this path")
		workers    = flag.Int("workers", 2, "documents processed in parallel")
		docType    = flag.String("type", "", "document template applied to every file")
		prompt     = flag.String("prompt", "", "custom prompt replacing the template prompt")
		timeout    = flag.Duration("timeout", 5*time.Minute, "per-document deadline")
		watch      = flag.Bool("watch", false, "keep running and process new files under -dir until interrupted")
		skipHidden = flag.Bool("skip-hidden", true, "ignore dot files and directories")
	)
	flag.Parse()

	if *dir == "" && flag.NArg() == 0 {
		printError("Error: --dir or at least one file is required\n")
		flag.Usage()
		return common.ExitUsage
	}
	if *watch && *dir == "" {
		printError("Error: --watch requires --dir\n")
		return common.ExitUsage
	}

	cfg := common.LoadConfig()
	logger := app.NewLogger(cfg.LogLevel)

	template := cfg.Pipeline.DocType
	if *docType != "" {
		template = *docType
	}
	dt, ok := constants.Canonicalize(template)
	if !ok {
		printError("Error: unknown --type %q (want one of %v)\n", template, constants.AsStringSlice())
		return common.ExitUsage
	}

	paths := slices.Clone(flag.Args())
	if *dir != "" && !*watch {
		found, stats, err := ingest.Discover(*dir, *skipHidden)
		if err != nil {
			printError("Error: %v\n", err)
			return common.ExitUsage
		}
		logger.Info("batch.discovered",
			"dir", *dir,
			"scanned", stats.Scanned,
			"matched", stats.Matched,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
		)
		paths = append(paths, found...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("batch.setup_failed", "code", common.ErrorCode(err), "error", err)
		printError("Error: %v\n", err)
		return common.ExitCode(err)
	}
	defer a.Close()

	col := &collector{out: os.Stdout}
	q := async.NewProcessorQueue(a.Orchestrator, logger,
		async.WithWorkers(*workers),
		async.WithProcessTimeout(*timeout),
		async.WithBaseContext(ctx),
		async.WithResultHandler(col.add),
	)

	opts := pipeline.Options{Template: dt, Prompt: *prompt}
	start := time.Now()
	if *watch {
		err = watchLoop(ctx, q, *dir, *skipHidden, opts, logger)
	} else {
		err = enqueueAll(ctx, q, paths, opts)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), *timeout)
	q.Shutdown(shutdownCtx)
	cancel()
	if err != nil && ctx.Err() == nil {
		logger.Error("batch.enqueue_failed", "error", err)
	}

	rows := col.rows()
	logger.Info("batch.done",
		"documents", len(rows),
		"cache", a.Cache.Stats(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if werr := writeExports(export.NewService(logger), rows, *csvOut, *xlsxOut); werr != nil {
		logger.Error("batch.export_failed", "error", werr)
		printError("Error: %v\n", werr)
		return common.ExitInternal
	}
	return exitForRows(rows)
}

func enqueueAll(ctx context.Context, q async.Queue, paths []string, opts pipeline.Options) error {
	for _, p := range paths {
		job := async.Job{Path: p, Declared: constants.MapExtToFormat(filepath.Ext(p)), Options: opts}
		if err := q.Enqueue(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

func watchLoop(ctx context.Context, q async.Queue, dir string, skipHidden bool, opts pipeline.Options, logger *slog.Logger) error {
	events, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
		Roots:       []string{dir},
		InitialScan: true,
		Debounce:    500 * time.Millisecond,
		SkipHidden:  skipHidden,
	}, logger)
	if err != nil {
		return err
	}
	logger.Info("batch.watching", "dir", dir)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-events:
			if !ok {
				return nil
			}
			if err := enqueueAll(ctx, q, []string{p}, opts); err != nil {
				return err
			}
		case err, ok := <-errs:
			if ok {
				logger.Warn("batch.watch_error", "error", err)
			}
		}
	}
}

// summaryLine is the JSON-lines record written for every finished document.
type summaryLine struct {
	JobID     string   `json:"job_id"`
	Source    string   `json:"source"`
	Status    string   `json:"status"`
	Pages     int      `json:"pages"`
	ElapsedMS int64    `json:"elapsed_ms"`
	Errors    []string `json:"errors,omitempty"`
}

// collector gathers outcomes from worker goroutines.
type collector struct {
	mu      sync.Mutex
	out     io.Writer
	results []export.Row
}

func (c *collector) add(o async.Outcome) {
	line := summaryLine{
		JobID:     o.Job.ID,
		Source:    o.Job.Path,
		Status:    string(o.Result.Status),
		Pages:     len(o.Result.Pages),
		ElapsedMS: o.Elapsed.Milliseconds(),
	}
	for _, e := range o.Result.Errors {
		line.Errors = append(line.Errors, e.Message)
	}
	if o.Err != nil && len(line.Errors) == 0 {
		line.Errors = []string{o.Err.Error()}
	}
	if line.Status == "" {
		line.Status = string(constants.DocumentFailure)
	}
	b, _ := json.Marshal(line)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out != nil {
		_, _ = c.out.Write(append(b, '\n'))
	}
	res := o.Result
	if res.Status == "" {
		res.Status = constants.DocumentFailure
	}
	c.results = append(c.results, export.Row{Source: o.Job.Path, Result: res})
}

// rows returns the collected results ordered by source path.
func (c *collector) rows() []export.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := slices.Clone(c.results)
	slices.SortFunc(out, func(a, b export.Row) int { return strings.Compare(a.Source, b.Source) })
	return out
}

func writeExports(svc *export.Service, rows []export.Row, csvPath, xlsxPath string) error {
	if csvPath != "" {
		var buf bytes.Buffer
		if err := svc.WriteCSV(&buf, rows); err != nil {
			return fmt.Errorf("render csv: %w", err)
		}
		if err := os.WriteFile(csvPath, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", csvPath, err)
		}
	}
	if xlsxPath != "" {
		b, err := svc.XLSX(rows)
		if err != nil {
			return fmt.Errorf("render xlsx: %w", err)
		}
		if err := os.WriteFile(xlsxPath, b, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", xlsxPath, err)
		}
	}
	return nil
}

// exitForRows reports an extraction failure when any document failed.
func exitForRows(rows []export.Row) int {
	for _, r := range rows {
		if r.Result.Status == constants.DocumentFailure {
			return common.ExitExtraction
		}
	}
	return common.ExitOK
}
