// Package store provides SQLite-backed persistence for briefing sessions,
// jobs, workers, client preferences and the audit log.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

// Store provides access to the SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New opens (creating if needed) the database at dbPath and runs migrations.
func New(dbPath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, nimerrors.NewStoreError("Open", "create db directory", err)
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nimerrors.NewStoreError("Open", "open db", err)
	}

	// SQLite has a single writer; one connection serialises access in-process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, nimerrors.NewStoreError("Open", "migrate", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
// Timestamps are stored as Unix milliseconds (UTC).
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS briefing_sessions (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		messages TEXT NOT NULL DEFAULT '[]',
		extracted_brief TEXT,
		missing_fields TEXT NOT NULL DEFAULT '[]',
		context_summary TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_briefing_sessions_one_active
		ON briefing_sessions(client_id) WHERE status = 'active';
	CREATE INDEX IF NOT EXISTS idx_briefing_sessions_status_updated
		ON briefing_sessions(status, updated_at);

	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		skills TEXT NOT NULL DEFAULT '[]',
		avg_rating REAL,
		current_job_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		worker_id TEXT REFERENCES workers(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		rating REAL,
		review_flag INTEGER NOT NULL DEFAULT 0,
		flagged_at INTEGER,
		status_changed_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_worker_status ON jobs(worker_id, status);
	CREATE INDEX IF NOT EXISTS idx_jobs_status_changed ON jobs(status, status_changed_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_client ON jobs(client_id, created_at);

	CREATE TABLE IF NOT EXISTS client_preferences (
		client_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (client_id, key)
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		subject_id TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_subject ON audit_log(subject_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
