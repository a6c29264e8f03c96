// Package history keeps a local record of executed query runs in a SQLite
// file: what ran, as which job, how long it took and how it ended. The
// store implements the session's RunRecorder, so recording is wired into
// every Execute when a history path is configured.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"cde-sql/internal/session"
)

// Entry is one recorded query run.
type Entry struct {
	ID           int64
	JobName      string
	SQL          string
	Outcome      string
	StartedAt    time.Time
	Duration     time.Duration
	RowsReturned int
	Error        string
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path and runs
// pending migrations.
func Open(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// Single writer; history writes are serialized through one cursor at a
	// time anyway.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// RecordRun implements session.RunRecorder.
func (s *Store) RecordRun(ctx context.Context, rec session.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_runs (job_name, sql_text, outcome, started_at, duration_ms, rows_returned, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.JobName, rec.SQL, rec.Outcome, rec.StartedAt.UTC(),
		rec.Duration.Milliseconds(), rec.RowsReturned, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert query run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_name, sql_text, outcome, started_at, duration_ms, rows_returned, error
		FROM query_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list query runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMS int64
		if err := rows.Scan(&e.ID, &e.JobName, &e.SQL, &e.Outcome, &e.StartedAt,
			&durationMS, &e.RowsReturned, &e.Error); err != nil {
			return nil, fmt.Errorf("scan query run: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list query runs: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
