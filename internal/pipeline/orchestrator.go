package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/cache"
	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/entity"
	"github.com/nilansh-07/FintelAI/internal/llm"
)

// Normalizer turns raw uploads into canonical page images.
type Normalizer interface {
	Normalize(ctx context.Context, raw []byte, declared constants.Format) (*entity.Document, error)
}

// Extractor sends one page to a backend.
type Extractor interface {
	Extract(ctx context.Context, req entity.ExtractionRequest) (entity.ExtractionResult, error)
}

// Validator decides the status and record of a raw extraction.
type Validator interface {
	Apply(res *entity.ExtractionResult)
}

// ResultCache memoizes page extractions by request key.
type ResultCache interface {
	GetOrCompute(ctx context.Context, key string, compute cache.ComputeFunc) (entity.ExtractionResult, error)
}

// Options select the prompt for one document.
type Options struct {
	Template constants.DocType
	Prompt   string // replaces the template prompt when non-empty
}

type Config struct {
	Concurrency int
}

// Orchestrator runs documents through normalize, extract, validate and merge.
type Orchestrator struct {
	cfg        Config
	normalizer Normalizer
	extractor  Extractor
	validator  Validator
	cache      ResultCache
	logger     *slog.Logger
}

// NewOrchestrator wires the stages. rc may be nil to disable caching.
func NewOrchestrator(cfg Config, n Normalizer, x Extractor, v Validator, rc ResultCache, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Orchestrator{
		cfg:        cfg,
		normalizer: n,
		extractor:  x,
		validator:  v,
		cache:      rc,
		logger:     logger,
	}
}

// Process normalizes raw and extracts every page. Input and configuration
// errors abort the document and are returned alongside a failure result.
func (o *Orchestrator) Process(ctx context.Context, raw []byte, declared constants.Format, opts Options) (entity.DocumentResult, error) {
	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
		ctx = common.WithRequestID(ctx, reqID)
	}
	start := time.Now()

	doc, err := o.normalizer.Normalize(ctx, raw, declared)
	if err != nil {
		o.logger.Warn("pipeline.document.rejected", "req_id", reqID, "code", common.ErrorCode(err), "error", err)
		template, _ := llm.ResolvePrompt(opts.Template, opts.Prompt)
		return entity.DocumentResult{
			Status:      constants.DocumentFailure,
			Pages:       []entity.PageResult{},
			Errors:      []entity.ErrorDetail{entity.NewErrorDetail(err)},
			Template:    template,
			ProcessedAt: time.Now().UTC(),
			ElapsedMS:   time.Since(start).Milliseconds(),
		}, err
	}
	return o.ProcessDocument(ctx, doc, opts)
}

// ProcessDocument extracts every page of doc concurrently and merges the
// page results in page order. It returns an error only when ctx ends or
// the cache reports an internal inconsistency.
func (o *Orchestrator) ProcessDocument(ctx context.Context, doc *entity.Document, opts Options) (entity.DocumentResult, error) {
	start := time.Now()
	reqID := common.RequestIDFromContext(ctx)
	ctx = common.WithDocumentID(ctx, doc.ID)
	template, prompt := llm.ResolvePrompt(opts.Template, opts.Prompt)
	log := o.logger.With("req_id", reqID, "document_id", shortID(doc.ID))
	log.Info("pipeline.document.start", "pages", len(doc.Pages), "template", template, "concurrency", o.cfg.Concurrency)

	out := entity.DocumentResult{
		DocumentID: doc.ID,
		Pages:      make([]entity.PageResult, len(doc.Pages)),
		Template:   template,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, page := range doc.Pages {
		g.Go(func() error {
			pr, err := o.processPage(gctx, page, template, prompt, log)
			if err != nil {
				return err
			}
			out.Pages[i] = pr
			return nil
		})
	}
	err := g.Wait()
	out.ProcessedAt = time.Now().UTC()
	out.ElapsedMS = time.Since(start).Milliseconds()

	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		log.Warn("pipeline.document.aborted", "code", common.ErrorCode(err), "error", err, "elapsed_ms", out.ElapsedMS)
		out.Status = constants.DocumentFailure
		out.Errors = []entity.ErrorDetail{entity.NewErrorDetail(err)}
		return out, err
	}

	merge(&out)
	log.Info("pipeline.document.done",
		"status", out.Status,
		"pages", len(out.Pages),
		"warnings", len(out.Warnings),
		"elapsed_ms", out.ElapsedMS,
	)
	return out, nil
}

func (o *Orchestrator) processPage(ctx context.Context, page *entity.Page, template, prompt string, log *slog.Logger) (entity.PageResult, error) {
	start := time.Now()
	req := entity.ExtractionRequest{Page: page, Template: template, Prompt: prompt}
	compute := func(ctx context.Context) (entity.ExtractionResult, error) {
		res, err := o.extractor.Extract(ctx, req)
		if err != nil {
			return res, err
		}
		o.validator.Apply(&res)
		return res, nil
	}

	var (
		res entity.ExtractionResult
		err error
	)
	if o.cache != nil {
		res, err = o.cache.GetOrCompute(ctx, req.Key(), compute)
	} else {
		res, err = compute(ctx)
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Error("pipeline.page.error", "page", page.Index, "code", common.ErrorCode(err), "error", err)
		}
		return entity.PageResult{}, err
	}

	pr := entity.PageResult{
		Index:       page.Index,
		PageHash:    page.Hash,
		Status:      res.Status,
		Record:      res.Record.Clone(),
		FieldErrors: res.FieldErrors,
		Repairs:     res.Repairs,
		Attempts:    res.Attempts,
		LatencyMS:   time.Since(start).Milliseconds(),
		Cached:      res.Cached,
	}
	if pr.Record != nil {
		idx := page.Index
		pr.Record.SourcePage = &idx
	}
	for _, e := range res.Errors {
		idx := page.Index
		e.Page = &idx
		pr.Errors = append(pr.Errors, e)
	}
	log.Info("pipeline.page.done",
		"page", page.Index,
		"status", pr.Status,
		"attempts", pr.Attempts,
		"cached", pr.Cached,
		"elapsed_ms", pr.LatencyMS,
	)
	return pr, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
