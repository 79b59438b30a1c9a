package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/app"
	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/entity"
	"github.com/nilansh-07/FintelAI/internal/pipeline"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: fintel [-prompt text] [-type %s] [-format pdf|image] [-timeout 5m] <file>\n", constants.DefaultDocType)
	flag.PrintDefaults()
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		prompt  = flag.String("prompt", "", "custom prompt replacing the document template prompt")
		docType = flag.String("type", "", "document template (invoice, receipt, salary_slip, bank_statement, balance_sheet, profit_and_loss)")
		format  = flag.String("format", "", "declared input format: pdf or image (default: detect)")
		timeout = flag.Duration("timeout", 5*time.Minute, "overall deadline for the document")
		pretty  = flag.Bool("pretty", true, "indent the JSON result")
	)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		return common.ExitUsage
	}
	path := flag.Arg(0)

	declared, ok := constants.ParseFormat(*format)
	if !ok {
		fmt.Fprintf(os.Stderr, "fintel: unknown -format %q\n", *format)
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
		fmt.Fprintf(os.Stderr, "fintel: unknown -type %q (want one of %v)\n", template, constants.AsStringSlice())
		return common.ExitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Error("fintel.read_failed", "path", path, "error", err)
		fmt.Fprintf(os.Stderr, "fintel: %v\n", err)
		return common.ExitUsage
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("fintel.setup_failed", "code", common.ErrorCode(err), "error", err)
		fmt.Fprintf(os.Stderr, "fintel: %v\n", err)
		return common.ExitCode(err)
	}
	defer a.Close()

	start := time.Now()
	res, err := a.Orchestrator.Process(ctx, raw, declared, pipeline.Options{Template: dt, Prompt: *prompt})
	if werr := writeResult(res, *pretty); werr != nil {
		logger.Error("fintel.write_failed", "error", werr)
		return common.ExitInternal
	}
	logger.Info("fintel.done",
		"file", filepath.Base(path),
		"status", res.Status,
		"pages", len(res.Pages),
		"cache", a.Cache.Stats(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if err != nil {
		return common.ExitCode(err)
	}
	return exitForResult(res)
}

func writeResult(res entity.DocumentResult, pretty bool) error {
	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}

// exitForResult maps a document with no successful page to an exit status.
// Pages that all failed authentication point at the configuration.
func exitForResult(res entity.DocumentResult) int {
	if res.Status != constants.DocumentFailure {
		return common.ExitOK
	}
	auth := len(res.Errors) > 0
	for _, e := range res.Errors {
		if e.Code != common.CodeAuthentication {
			auth = false
			break
		}
	}
	if auth {
		return common.ExitConfiguration
	}
	return common.ExitExtraction
}
