package accesslog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const insertEntry = `INSERT INTO access_log
	(time_ms, request_id, method, uri, endpoint, status, duration_ms, client)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteSink stores entries in the access_log table.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at path.
func NewSQLiteSink(ctx context.Context, path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite sink needs a path", ErrSinkConfig)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open access log db: %w", err)
	}
	// One writer; the worker is the only caller.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS access_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time_ms INTEGER NOT NULL,
			request_id TEXT NOT NULL,
			method TEXT NOT NULL,
			uri TEXT NOT NULL,
			endpoint TEXT NOT NULL DEFAULT '',
			status INTEGER NOT NULL,
			duration_ms REAL NOT NULL,
			client TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_access_log_time ON access_log(time_ms);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate access log db: %w", err)
		}
	}
	return nil
}

// Write inserts entries in one transaction.
func (s *SQLiteSink) Write(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin access log tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertEntry)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare access log insert: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		if _, err := stmt.ExecContext(ctx,
			e.Time.UnixMilli(), e.RequestID, e.Method, e.URI, e.Endpoint,
			e.Status, e.DurationMs, e.Client,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert access log entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit access log tx: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT time_ms, request_id, method, uri, endpoint, status, duration_ms, client
		FROM access_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query access log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&ms, &e.RequestID, &e.Method, &e.URI, &e.Endpoint, &e.Status, &e.DurationMs, &e.Client); err != nil {
			return nil, fmt.Errorf("scan access log: %w", err)
		}
		e.Time = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
