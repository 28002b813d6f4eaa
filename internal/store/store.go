package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/layoutprobe/internal/runner"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Schema creates the run history tables.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_runs (
    id          TEXT PRIMARY KEY,
    base_url    TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    passed      INTEGER NOT NULL,
    failed      INTEGER NOT NULL,
    errored     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS audit_violations (
    id          BIGSERIAL PRIMARY KEY,
    run_id      TEXT NOT NULL REFERENCES audit_runs(id) ON DELETE CASCADE,
    check_name  TEXT NOT NULL,
    viewport    TEXT NOT NULL,
    width       INTEGER NOT NULL,
    height      INTEGER NOT NULL,
    path        TEXT NOT NULL,
    url         TEXT NOT NULL,
    summary     TEXT NOT NULL,
    detail      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_violations_run_id_idx ON audit_violations (run_id);
`

const (
	sqlInsertRun = `
        INSERT INTO audit_runs (id, base_url, started_at, finished_at, passed, failed, errored)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `
	sqlInsertViolation = `
        INSERT INTO audit_violations (run_id, check_name, viewport, width, height, path, url, summary, detail)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
    `
	sqlListRuns = `
        SELECT id, base_url, started_at, finished_at, passed, failed, errored
        FROM audit_runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
	sqlViolationsByRun = `
        SELECT check_name, viewport, width, height, path, url, summary, detail
        FROM audit_violations
        WHERE run_id = $1
        ORDER BY id ASC;
    `
)

// RunRecord is a stored run summary.
type RunRecord struct {
	ID         string
	BaseURL    string
	StartedAt  time.Time
	FinishedAt time.Time
	Passed     int
	Failed     int
	Errored    int
}

// ViolationRecord is one stored violation of a run.
type ViolationRecord struct {
	RunID    string
	Check    string
	Viewport string
	Width    int
	Height   int
	Path     string
	URL      string
	Summary  string
	Detail   []byte
}

// Store persists audit runs in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Open connects to the database at url and ensures the schema exists.
func Open(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	if url == "" {
		return nil, errors.New("database url is empty")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the run history tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveRun writes the run summary and every violation in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *runner.Run) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := s.persistRun(ctx, tx, run); err != nil {
		s.rollback(ctx, tx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Saved run", zap.String("run_id", run.ID), zap.Int("results", len(run.Results)))
	return nil
}

func (s *Store) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.log.Error("Failed to rollback transaction", zap.Error(err))
	}
}

func (s *Store) persistRun(ctx context.Context, tx pgx.Tx, run *runner.Run) error {
	passed, failed, errored := run.Counts()
	if _, err := tx.Exec(ctx, sqlInsertRun,
		run.ID, run.BaseURL, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		passed, failed, errored,
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	for _, res := range run.Results {
		if res.Status != runner.StatusFail {
			continue
		}
		for i, v := range res.Violations {
			detail, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to encode violation %d of %s: %w", i, res.Check, err)
			}
			if _, err := tx.Exec(ctx, sqlInsertViolation,
				run.ID, res.Check, res.Viewport.Name, res.Viewport.Width, res.Viewport.Height,
				res.Path, res.URL, v.Summary(), detail,
			); err != nil {
				return fmt.Errorf("failed to insert violation %d of %s: %w", i, res.Check, err)
			}
		}
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, sqlListRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.BaseURL, &r.StartedAt, &r.FinishedAt, &r.Passed, &r.Failed, &r.Errored); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// Violations returns the stored violations of runID in insertion order.
func (s *Store) Violations(ctx context.Context, runID string) ([]ViolationRecord, error) {
	rows, err := s.pool.Query(ctx, sqlViolationsByRun, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()

	var out []ViolationRecord
	for rows.Next() {
		v := ViolationRecord{RunID: runID}
		if err := rows.Scan(&v.Check, &v.Viewport, &v.Width, &v.Height, &v.Path, &v.URL, &v.Summary, &v.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan violation row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
