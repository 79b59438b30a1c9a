package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nilansh-07/FintelAI/internal/entity"
)

type notFoundError struct{}

func (notFoundError) Error() string  { return "store: not found" }
func (notFoundError) NotFound() bool { return true }

// ErrNotFound is returned by Get when no live row exists for a key.
var ErrNotFound error = notFoundError{}

// Store persists extraction results across processes.
type Store interface {
	Get(ctx context.Context, key string) (entity.ExtractionResult, time.Time, error)
	Put(ctx context.Context, res entity.ExtractionResult, expiresAt time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// DefaultConfig returns pool settings for dsn.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		DialTimeout:     3 * time.Second,
	}
}

// Open picks a backend from the DSN: postgres URLs go to pgx, anything
// else is treated as a sqlite file path.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DSN == "" {
		return nil, errors.New("store: empty DSN")
	}
	if isPostgres(cfg.DSN) {
		return OpenPostgres(ctx, cfg, logger)
	}
	return OpenSQLite(ctx, cfg.DSN, logger)
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func encode(res entity.ExtractionResult) ([]byte, error) {
	res.Cached = false
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return b, nil
}

func decode(b []byte) (entity.ExtractionResult, error) {
	var res entity.ExtractionResult
	if err := json.Unmarshal(b, &res); err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("decode result: %w", err)
	}
	return res, nil
}
