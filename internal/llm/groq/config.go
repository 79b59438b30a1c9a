package groq

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/nilansh-07/FintelAI/internal/common"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "meta-llama/llama-4-maverick-17b-128e-instruct"
)

// Config for the Groq client.
type Config struct {
	APIKey      string
	BaseURL     string // default https://api.groq.com/openai/v1
	Model       string
	Temperature float32
	MaxTokens   int
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient validates cfg and builds a client. A missing API key is a
// configuration error reported here, before any request is attempted.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, common.ConfigurationErrorf("GROQ_API_KEY is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if httpClient == nil {
		// per-attempt deadlines come from the caller's context
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}, nil
}

// ConfigFrom maps the application config onto client settings.
func ConfigFrom(c common.LLMConfig) Config {
	return Config{
		APIKey:      c.GroqAPIKey,
		BaseURL:     c.GroqBaseURL,
		Model:       c.GroqModel,
		Temperature: c.Temperature,
	}
}
