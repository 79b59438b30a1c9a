package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nilansh-07/FintelAI/internal/entity"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS extraction_results (
	cache_key  TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	result     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS extraction_results_expires_at ON extraction_results (expires_at);
`

type postgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres creates a pgx pool and ensures the results table exists.
func OpenPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("store.open_failed", "driver", "postgres", "error", err)
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	logger.Info("store.open", "driver", "postgres", "host", pc.ConnConfig.Host, "database", pc.ConnConfig.Database)

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "fintel"

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("store.open_failed", "driver", "postgres", "error", err)
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(dialCtx, postgresSchema); err != nil {
		pool.Close()
		logger.Error("store.migrate_failed", "driver", "postgres", "error", err)
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &postgresStore{pool: pool, logger: logger}, nil
}

func (s *postgresStore) Get(ctx context.Context, key string) (entity.ExtractionResult, time.Time, error) {
	var (
		blob    []byte
		expires time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT result, expires_at FROM extraction_results WHERE cache_key = $1 AND expires_at > now()`,
		key).Scan(&blob, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.ExtractionResult{}, time.Time{}, ErrNotFound
	}
	if err != nil {
		return entity.ExtractionResult{}, time.Time{}, fmt.Errorf("select result: %w", err)
	}
	res, err := decode(blob)
	if err != nil {
		return entity.ExtractionResult{}, time.Time{}, err
	}
	return res, expires, nil
}

func (s *postgresStore) Put(ctx context.Context, res entity.ExtractionResult, expiresAt time.Time) error {
	blob, err := encode(res)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO extraction_results (cache_key, status, result, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (cache_key) DO UPDATE SET
	status = EXCLUDED.status,
	result = EXCLUDED.result,
	created_at = EXCLUDED.created_at,
	expires_at = EXCLUDED.expires_at`,
		res.Key, string(res.Status), blob, res.CreatedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

func (s *postgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM extraction_results WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks connectivity; callers bound it with their own timeout.
func (s *postgresStore) Ping(ctx context.Context) error {
	s.logger.Debug("store.ping", "driver", "postgres")
	return s.pool.Ping(ctx)
}

func (s *postgresStore) Close() error {
	s.logger.Info("store.close", "driver", "postgres")
	s.pool.Close()
	return nil
}
