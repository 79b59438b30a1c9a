package common

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted in FINTEL_BACKEND.
const (
	BackendGroq   = "groq"
	BackendGemini = "gemini"
)

// Config holds all application configuration
type Config struct {
	LLM       LLMConfig
	Normalize NormalizeConfig
	Cache     CacheConfig
	Pipeline  PipelineConfig
	LogLevel  slog.Level
}

// LLMConfig holds extraction backend configuration
type LLMConfig struct {
	Backend        string
	GroqAPIKey     string
	GroqModel      string
	GroqBaseURL    string
	GeminiAPIKey   string
	GeminiModel    string
	Temperature    float32
	AttemptTimeout time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	RateLimit      float64 // requests per second; 0 disables
}

// NormalizeConfig holds document normalization limits
type NormalizeConfig struct {
	DPI          int
	Pdftoppm     string
	MaxPages     int
	MaxPageBytes int
	MaxDimension int
	MaxPixels    int64
	JPEGQuality  int
}

// CacheConfig holds extraction cache configuration
type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration
	InvalidTTL time.Duration
	DSN        string // optional durable store: sqlite path or postgres URL
}

// PipelineConfig holds orchestration settings
type PipelineConfig struct {
	Concurrency int
	DocType     string
}

// LoadConfig loads configuration from environment variables, reading a .env file first if present.
func LoadConfig() *Config {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded environment from .env")
	}
	return &Config{
		LLM: LLMConfig{
			Backend:        strings.ToLower(getEnv("FINTEL_BACKEND", BackendGroq)),
			GroqAPIKey:     getEnv("GROQ_API_KEY", ""),
			GroqModel:      getEnv("GROQ_MODEL", "meta-llama/llama-4-maverick-17b-128e-instruct"),
			GroqBaseURL:    getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
			GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			Temperature:    getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			AttemptTimeout: getEnvAsDuration("LLM_ATTEMPT_TIMEOUT", 60*time.Second),
			MaxAttempts:    getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
			BackoffBase:    getEnvAsDuration("LLM_BACKOFF_BASE", 500*time.Millisecond),
			BackoffMax:     getEnvAsDuration("LLM_BACKOFF_MAX", 8*time.Second),
			RateLimit:      getEnvAsFloat64("LLM_RATE_LIMIT", 0),
		},
		Normalize: NormalizeConfig{
			DPI:          getEnvAsInt("PDF_DPI", 200),
			Pdftoppm:     getEnv("PDFTOPPM", "pdftoppm"),
			MaxPages:     getEnvAsInt("MAX_PAGES", 20),
			MaxPageBytes: getEnvAsInt("MAX_PAGE_BYTES", 4<<20),
			MaxDimension: getEnvAsInt("MAX_IMAGE_DIMENSION", 2000),
			MaxPixels:    int64(getEnvAsInt("MAX_IMAGE_PIXELS", 50_000_000)),
			JPEGQuality:  getEnvAsInt("JPEG_QUALITY", 85),
		},
		Cache: CacheConfig{
			MaxEntries: getEnvAsInt("CACHE_MAX_ENTRIES", 1024),
			TTL:        getEnvAsDuration("CACHE_TTL", 24*time.Hour),
			InvalidTTL: getEnvAsDuration("CACHE_INVALID_TTL", 5*time.Minute),
			DSN:        getEnv("CACHE_DSN", ""),
		},
		Pipeline: PipelineConfig{
			Concurrency: getEnvAsInt("PIPELINE_CONCURRENCY", 4),
			DocType:     getEnv("DOC_TYPE", "invoice"),
		},
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	if value := os.Getenv(key); value != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(value)); err == nil {
			return lvl
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration. A missing credential for the
// selected backend is reported here, before any client is constructed.
func (c *Config) Validate() error {
	switch c.LLM.Backend {
	case BackendGroq:
		if strings.TrimSpace(c.LLM.GroqAPIKey) == "" {
			return ConfigurationErrorf("GROQ_API_KEY is required")
		}
	case BackendGemini:
		if strings.TrimSpace(c.LLM.GeminiAPIKey) == "" {
			return ConfigurationErrorf("GEMINI_API_KEY is required")
		}
	default:
		return ConfigurationErrorf("unknown FINTEL_BACKEND %q (want %s or %s)", c.LLM.Backend, BackendGroq, BackendGemini)
	}
	if c.LLM.MaxAttempts < 1 {
		return ConfigurationErrorf("LLM_MAX_ATTEMPTS must be >= 1, got %d", c.LLM.MaxAttempts)
	}
	if c.Normalize.MaxPages < 1 {
		return ConfigurationErrorf("MAX_PAGES must be >= 1, got %d", c.Normalize.MaxPages)
	}
	if c.Pipeline.Concurrency < 1 {
		return ConfigurationErrorf("PIPELINE_CONCURRENCY must be >= 1, got %d", c.Pipeline.Concurrency)
	}
	return nil
}
