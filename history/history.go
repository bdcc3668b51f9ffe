// Package history keeps a local SQLite record of past smoke runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/st-keller/galacash-smoke/stats"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	base_url    TEXT NOT NULL,
	total       INTEGER NOT NULL,
	successful  INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	total_ms    REAL NOT NULL,
	exit_code   INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

CREATE TABLE IF NOT EXISTS run_categories (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name     TEXT NOT NULL,
	requests INTEGER NOT NULL,
	total_ms REAL NOT NULL,
	p50_ms   REAL NOT NULL,
	p95_ms   REAL NOT NULL,
	max_ms   REAL NOT NULL,
	PRIMARY KEY (run_id, name)
);
`

// Run is one finished smoke run.
type Run struct {
	ID         string // assigned by Record when empty
	StartedAt  time.Time
	FinishedAt time.Time
	BaseURL    string
	ExitCode   int
	Error      string
	Summary    stats.Summary
}

// Store is a run history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores run and its per-category rows atomically and returns the run ID.
func (s *Store) Record(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sum := run.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, base_url, total, successful, failed, total_ms, exit_code, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.BaseURL,
		sum.Total, sum.Successful, sum.Failed, ms(sum.TotalTime), run.ExitCode, run.Error,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, c := range sum.Categories {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_categories (run_id, name, requests, total_ms, p50_ms, p95_ms, max_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, c.Name, c.Count, ms(c.Total), ms(c.P50), ms(c.P95), ms(c.Max),
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert category %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

// Recent returns up to n runs, newest first, with their categories.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, base_url, total, successful, failed, total_ms, exit_code, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished int64
			totalMS           float64
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.BaseURL,
			&r.Summary.Total, &r.Summary.Successful, &r.Summary.Failed, &totalMS, &r.ExitCode, &r.Error); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		r.Summary.TotalTime = fromMS(totalMS)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range runs {
		cats, err := s.categories(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Summary.Categories = cats
	}
	return runs, nil
}

func (s *Store) categories(ctx context.Context, runID string) ([]stats.CategoryStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, requests, total_ms, p50_ms, p95_ms, max_ms
		FROM run_categories WHERE run_id = ? ORDER BY requests DESC, name`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var out []stats.CategoryStats
	for rows.Next() {
		var (
			c                       stats.CategoryStats
			total, p50, p95, maxDur float64
		)
		if err := rows.Scan(&c.Name, &c.Count, &total, &p50, &p95, &maxDur); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.Total, c.P50, c.P95, c.Max = fromMS(total), fromMS(p50), fromMS(p95), fromMS(maxDur)
		out = append(out, c)
	}
	return out, rows.Err()
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func fromMS(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}
