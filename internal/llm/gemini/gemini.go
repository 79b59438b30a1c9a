package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/llm"
)

const DefaultModel = "gemini-2.5-flash"

type Config struct {
	APIKey      string
	Model       string
	Temperature float32
}

// ConfigFrom maps the application config onto client settings.
func ConfigFrom(c common.LLMConfig) Config {
	return Config{APIKey: c.GeminiAPIKey, Model: c.GeminiModel, Temperature: c.Temperature}
}

// Engine implements llm.Backend on the Gemini API.
type Engine struct {
	cfg    Config
	client *genai.Client
	logger *slog.Logger
}

// New validates cfg and opens a client. A missing API key is a configuration
// error reported before any request is attempted.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.APIKey == "" {
		return nil, common.ConfigurationErrorf("GEMINI_API_KEY is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, common.ConfigurationErrorf("gemini client: %v", err)
	}
	return &Engine{cfg: cfg, client: cl, logger: logger}, nil
}

func (e *Engine) Name() string  { return "gemini" }
func (e *Engine) Model() string { return e.cfg.Model }

// Close releases the underlying client.
func (e *Engine) Close() error {
	return e.client.Close()
}

// Complete implements llm.Backend.
func (e *Engine) Complete(ctx context.Context, req llm.BackendRequest) (llm.BackendResponse, error) {
	start := time.Now()

	m := e.client.GenerativeModel(e.cfg.Model)
	temp := e.cfg.Temperature
	if req.Temperature != 0 {
		temp = req.Temperature
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: &temp,
	}
	if req.ResponseFormat == llm.ResponseFormatJSON {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	resp, err := m.GenerateContent(ctx,
		genai.Text(req.Prompt),
		&genai.Blob{MIMEType: req.MIMEType, Data: req.Image},
	)
	if err != nil {
		cerr := classify(ctx, err)
		e.logger.Warn("gemini.complete.error",
			"code", common.ErrorCode(cerr),
			"error", cerr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.BackendResponse{}, cerr
	}

	out := llm.BackendResponse{Content: strings.TrimSpace(firstText(resp))}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	e.logger.Debug("gemini.complete.ok",
		"model", e.cfg.Model,
		"prompt_tokens", out.PromptTokens,
		"completion_tokens", out.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// classify maps gRPC status codes onto the error taxonomy.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return common.TransientBackend("gemini request interrupted", err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return common.TransientBackend("gemini request failed", err)
	}
	msg := fmt.Sprintf("gemini %s: %s", st.Code(), st.Message())
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return common.Authentication(msg, err)
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal, codes.Aborted, codes.Unknown:
		return common.TransientBackend(msg, err)
	default:
		return common.ExtractionFailure(msg, err)
	}
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}
