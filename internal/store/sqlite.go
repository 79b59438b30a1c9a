package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nilansh-07/FintelAI/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS extraction_results (
	cache_key  TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	result     BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS extraction_results_expires_at ON extraction_results (expires_at);
`

type sqliteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) a sqlite database at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("store.open", "driver", "sqlite", "path", path)
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		logger.Error("store.open_failed", "driver", "sqlite", "error", err)
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		logger.Error("store.migrate_failed", "driver", "sqlite", "error", err)
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &sqliteStore{db: db, logger: logger}, nil
}

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// sqliteDSN appends the connection pragmas to path, which may already carry
// a query string (file:x.db?mode=rwc).
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + sqlitePragmas
}

func (s *sqliteStore) Get(ctx context.Context, key string) (entity.ExtractionResult, time.Time, error) {
	var (
		blob    []byte
		expires int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT result, expires_at FROM extraction_results WHERE cache_key = ? AND expires_at > ?`,
		key, time.Now().UnixMilli()).Scan(&blob, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ExtractionResult{}, time.Time{}, ErrNotFound
	}
	if err != nil {
		return entity.ExtractionResult{}, time.Time{}, fmt.Errorf("select result: %w", err)
	}
	res, err := decode(blob)
	if err != nil {
		return entity.ExtractionResult{}, time.Time{}, err
	}
	return res, time.UnixMilli(expires), nil
}

func (s *sqliteStore) Put(ctx context.Context, res entity.ExtractionResult, expiresAt time.Time) error {
	blob, err := encode(res)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO extraction_results (cache_key, status, result, created_at, expires_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (cache_key) DO UPDATE SET
	status = excluded.status,
	result = excluded.result,
	created_at = excluded.created_at,
	expires_at = excluded.expires_at`,
		res.Key, string(res.Status), blob, res.CreatedAt.UnixMilli(), expiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

func (s *sqliteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r, err := s.db.ExecContext(ctx, `DELETE FROM extraction_results WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return r.RowsAffected()
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() error {
	s.logger.Info("store.close", "driver", "sqlite")
	return s.db.Close()
}
