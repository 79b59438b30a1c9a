package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/entity"
)

// AdapterConfig bounds how hard the adapter tries a backend.
type AdapterConfig struct {
	AttemptTimeout time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	RateLimit      float64 // requests per second; 0 disables
	Temperature    float32
}

// AdapterConfigFrom maps the application config onto adapter settings.
func AdapterConfigFrom(c common.LLMConfig) AdapterConfig {
	return AdapterConfig{
		AttemptTimeout: c.AttemptTimeout,
		MaxAttempts:    c.MaxAttempts,
		BackoffBase:    c.BackoffBase,
		BackoffMax:     c.BackoffMax,
		RateLimit:      c.RateLimit,
		Temperature:    c.Temperature,
	}
}

// Adapter wraps a Backend with per-attempt timeouts, bounded retries and
// an optional client-side rate limit.
type Adapter struct {
	backend    Backend
	cfg        AdapterConfig
	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

type AdapterOption func(*Adapter)

// WithBackOff replaces the retry schedule (tests use backoff.ZeroBackOff).
func WithBackOff(f func() backoff.BackOff) AdapterOption {
	return func(a *Adapter) { a.newBackOff = f }
}

func NewAdapter(b Backend, cfg AdapterConfig, logger *slog.Logger, opts ...AdapterOption) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 8 * time.Second
	}
	a := &Adapter{backend: b, cfg: cfg, logger: logger.With("backend", b.Name(), "model", b.Model())}
	if cfg.RateLimit > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	a.newBackOff = a.exponentialBackOff
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) exponentialBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.cfg.BackoffBase
	b.MaxInterval = a.cfg.BackoffMax
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Extract sends the page to the backend until a well-formed response arrives
// or attempts run out. Exhaustion and permanent failures yield a result with
// status invalid and one ErrorDetail per failed attempt; the returned error is
// non-nil only when ctx itself ended. On success Status is left empty for the
// validator to decide.
func (a *Adapter) Extract(ctx context.Context, req entity.ExtractionRequest) (entity.ExtractionResult, error) {
	start := time.Now()
	res := entity.ExtractionResult{
		Key:       req.Key(),
		Backend:   a.backend.Name(),
		Model:     a.backend.Model(),
		CreatedAt: start.UTC(),
	}
	if req.Page == nil || len(req.Page.Image) == 0 {
		res.Status = constants.StatusInvalid
		res.Errors = []entity.ErrorDetail{entity.NewErrorDetail(common.ExtractionFailure("request has no page image", nil))}
		return res, nil
	}

	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	log := a.logger.With(
		"req_id", reqID,
		"doc_id", shortKey(common.DocumentIDFromContext(ctx)),
		"key", shortKey(res.Key),
		"page", req.Page.Index,
	)
	log.Info("llm.extract.start", "image_bytes", len(req.Page.Image), "max_attempts", a.cfg.MaxAttempts)

	breq := BackendRequest{
		Image:          req.Page.Image,
		MIMEType:       req.Page.MIMEType,
		System:         SystemPrompt,
		Prompt:         req.Prompt,
		ResponseFormat: ResponseFormatJSON,
		Temperature:    a.cfg.Temperature,
	}

	op := func() error {
		res.Attempts++
		attempt := res.Attempts

		content, err := a.attempt(ctx, breq)
		if err == nil {
			res.Raw = content
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		detail := entity.NewErrorDetail(err)
		detail.Attempt = attempt
		res.Errors = append(res.Errors, detail)

		if !Retryable(err) {
			log.Warn("llm.extract.permanent_failure", "attempt", attempt, "code", detail.Code, "error", err)
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(a.newBackOff(), uint64(a.cfg.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.Warn("llm.extract.retry",
			"attempt", res.Attempts,
			"code", common.ErrorCode(err),
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
	})
	res.Latency = time.Since(start)

	switch {
	case err == nil:
		log.Info("llm.extract.ok",
			"attempts", res.Attempts,
			"content_bytes", len(res.Raw),
			"elapsed_ms", res.Latency.Milliseconds(),
		)
		return res, nil
	case ctx.Err() != nil:
		log.Info("llm.extract.canceled", "attempts", res.Attempts, "error", ctx.Err(), "elapsed_ms", res.Latency.Milliseconds())
		return res, ctx.Err()
	default:
		res.Status = constants.StatusInvalid
		log.Error("llm.extract.failed",
			"attempts", res.Attempts,
			"code", common.ErrorCode(err),
			"error", err,
			"elapsed_ms", res.Latency.Milliseconds(),
		)
		return res, nil
	}
}

// attempt runs one rate-limited, timeout-bounded backend call and checks the response shape.
func (a *Adapter) attempt(ctx context.Context, breq BackendRequest) (string, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", common.TransientBackend("rate limiter wait", err)
		}
	}

	actx, cancel := context.WithTimeout(ctx, a.cfg.AttemptTimeout)
	defer cancel()

	resp, err := a.backend.Complete(actx, breq)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, common.ErrTransientBackend) {
			return "", common.TransientBackend(fmt.Sprintf("attempt timed out after %s", a.cfg.AttemptTimeout), err)
		}
		return "", err
	}
	if err := checkShape(resp.Content); err != nil {
		return "", err
	}
	return resp.Content, nil
}

// checkShape requires non-empty content carrying a JSON object.
func checkShape(content string) error {
	s := strings.TrimSpace(content)
	if s == "" {
		return common.MalformedResponsef("empty response content")
	}
	if !strings.Contains(s, "{") {
		return common.MalformedResponsef("response contains no JSON object")
	}
	return nil
}

// Retryable reports whether a failed attempt may be retried.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, common.ErrAuthentication),
		errors.Is(err, common.ErrConfiguration),
		errors.Is(err, common.ErrExtractionFailure):
		return false
	default:
		return true
	}
}

func shortKey(k string) string {
	if len(k) > 12 {
		return k[:12]
	}
	return k
}
