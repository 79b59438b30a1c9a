package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/nilansh-07/FintelAI/internal/cache"
	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/llm"
	"github.com/nilansh-07/FintelAI/internal/llm/gemini"
	"github.com/nilansh-07/FintelAI/internal/llm/groq"
	"github.com/nilansh-07/FintelAI/internal/normalize"
	"github.com/nilansh-07/FintelAI/internal/pipeline"
	"github.com/nilansh-07/FintelAI/internal/store"
	"github.com/nilansh-07/FintelAI/internal/validate"
)

// App holds the wired pipeline and the resources it owns.
type App struct {
	Orchestrator *pipeline.Orchestrator
	Cache        *cache.Cache
	Backend      llm.Backend

	closers []func() error
	logger  *slog.Logger
}

// NewLogger returns the JSON stderr logger the binaries share.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// New validates cfg and wires every stage. Configuration problems, including
// a missing credential, are returned before any network call.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{logger: logger}
	backend, err := a.newBackend(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	a.Backend = backend

	validator, err := validate.NewValidator(logger)
	if err != nil {
		_ = a.Close()
		return nil, common.WrapError(err, "build validator")
	}

	var cacheOpts []cache.Option
	if cfg.Cache.DSN != "" {
		st, err := store.Open(ctx, store.DefaultConfig(cfg.Cache.DSN), logger)
		if err != nil {
			// the durable level is optional
			logger.Warn("app.store.unavailable", "error", err)
		} else {
			a.closers = append(a.closers, st.Close)
			cacheOpts = append(cacheOpts, cache.WithStore(st))
			if n, err := st.DeleteExpired(ctx, time.Now()); err != nil {
				logger.Warn("app.store.purge_failed", "error", err)
			} else if n > 0 {
				logger.Info("app.store.purged", "rows", n)
			}
		}
	}
	c, err := cache.New(cache.ConfigFrom(cfg.Cache), logger, cacheOpts...)
	if err != nil {
		_ = a.Close()
		return nil, common.WrapError(err, "build cache")
	}
	a.Cache = c

	adapter := llm.NewAdapter(backend, llm.AdapterConfigFrom(cfg.LLM), logger)
	normalizer := normalize.NewNormalizer(normalize.ConfigFrom(cfg.Normalize), logger)
	a.Orchestrator = pipeline.NewOrchestrator(
		pipeline.Config{Concurrency: cfg.Pipeline.Concurrency},
		normalizer, adapter, validator, c, logger,
	)

	logger.Info("app.ready",
		"backend", backend.Name(),
		"model", backend.Model(),
		"concurrency", cfg.Pipeline.Concurrency,
		"durable_cache", len(cacheOpts) > 0,
	)
	return a, nil
}

func (a *App) newBackend(ctx context.Context, cfg common.LLMConfig) (llm.Backend, error) {
	switch cfg.Backend {
	case common.BackendGemini:
		e, err := gemini.New(ctx, gemini.ConfigFrom(cfg), a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, e.Close)
		return e, nil
	default:
		return groq.NewClient(groq.ConfigFrom(cfg), nil, a.logger)
	}
}

// Close releases the backend client and the durable store.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		a.logger.Warn("app.close.failed", "error", errors.Join(errs...))
	}
	return errors.Join(errs...)
}
