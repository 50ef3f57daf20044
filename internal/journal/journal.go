// Package journal keeps a SQLite history of reload attempts.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/conneroisu/quire/internal/errors"
)

// Outcome is how a reload attempt ended.
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeFailed    Outcome = "failed"
)

// Record is one reload attempt.
type Record struct {
	ID         string
	Generation uint64
	Trigger    string
	Outcome    Outcome
	StartedAt  time.Time
	Duration   time.Duration
	Files      int
	Posts      int
	Pages      int
	Warnings   int
	Errors     int
	Error      string
}

// Journal wraps the history database.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path. ":memory:" is accepted.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, journalError("open database", err)
	}
	// One connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()

		return nil, journalError("enable WAL", err)
	}

	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		_ = db.Close()

		return nil, journalError("init schema", err)
	}

	return j, nil
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reloads (
		id TEXT PRIMARY KEY,
		generation INTEGER NOT NULL,
		reason TEXT NOT NULL,
		outcome TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		files INTEGER NOT NULL DEFAULT 0,
		posts INTEGER NOT NULL DEFAULT 0,
		pages INTEGER NOT NULL DEFAULT 0,
		warnings INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reloads_started ON reloads(started_at);
	`

	_, err := j.db.Exec(schema)

	return err
}

// Record stores r, assigning an ID when it has none.
func (j *Journal) Record(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	query := `
	INSERT INTO reloads (
		id, generation, reason, outcome, started_at, duration_ms,
		files, posts, pages, warnings, errors, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := j.db.ExecContext(ctx, query,
		r.ID, int64(r.Generation), r.Trigger, string(r.Outcome),
		r.StartedAt.UnixMilli(), r.Duration.Milliseconds(),
		r.Files, r.Posts, r.Pages, r.Warnings, r.Errors, nullable(r.Error),
	)
	if err != nil {
		return journalError("insert reload", err)
	}

	return nil
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx, `
	SELECT id, generation, reason, outcome, started_at, duration_ms,
		files, posts, pages, warnings, errors, error
	FROM reloads
	ORDER BY started_at DESC, rowid DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, journalError("query reloads", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r          Record
			generation int64
			outcome    string
			startedAt  int64
			durationMs int64
			errText    sql.NullString
		)
		if err := rows.Scan(&r.ID, &generation, &r.Trigger, &outcome, &startedAt, &durationMs,
			&r.Files, &r.Posts, &r.Pages, &r.Warnings, &r.Errors, &errText); err != nil {
			return nil, journalError("scan reload", err)
		}
		r.Generation = uint64(generation)
		r.Outcome = Outcome(outcome)
		r.StartedAt = time.UnixMilli(startedAt).UTC()
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.Error = errText.String
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, journalError("iterate reloads", err)
	}

	return records, nil
}

// Count returns the number of stored records.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reloads").Scan(&n); err != nil {
		return 0, journalError("count reloads", err)
	}

	return n, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}

	return s
}

func journalError(op string, err error) error {
	return errors.NewInternalError(errors.ErrCodeJournalFailure, fmt.Sprintf("journal: %s", op), err).
		WithComponent("journal")
}
