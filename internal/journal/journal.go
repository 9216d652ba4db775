// Package journal keeps a queryable record of handled webhook events for the
// lifetime of the process.
//
// The store is an in-memory SQLite database: builds are observable through
// the status endpoint while the server runs, and nothing survives a restart.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one handled event: an admitted build or a rejection worth seeing.
type Entry struct {
	ID              int64     `json:"id"`
	Repo            string    `json:"repo"`
	Ref             string    `json:"ref"`
	Commit          string    `json:"commit,omitempty"`
	Delivery        string    `json:"delivery,omitempty"`
	Status          string    `json:"status"`
	Message         string    `json:"message,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
}

// Journal is the process-lifetime event store.
type Journal struct {
	db *sql.DB
}

// Open creates the in-memory store and its schema.
func Open() (*Journal, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening journal store: %w", err)
	}

	// A single connection keeps the in-memory database alive and serializes
	// writes, which is all SQLite supports anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return j, nil
}

// Close releases the store. All entries are discarded.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) initSchema() error {
	_, err := j.db.Exec(`
		CREATE TABLE builds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repo TEXT NOT NULL,
			ref TEXT NOT NULL,
			commit_sha TEXT,
			delivery TEXT,
			status TEXT NOT NULL,
			message TEXT,
			started_at TEXT NOT NULL,
			duration_seconds REAL
		)
	`)
	return err
}

// Record inserts an entry and returns its id. StartedAt defaults to now.
func (j *Journal) Record(ctx context.Context, entry *Entry) (int64, error) {
	startedAt := entry.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	result, err := j.db.ExecContext(ctx, `
		INSERT INTO builds
		(repo, ref, commit_sha, delivery, status, message, started_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.Repo,
		entry.Ref,
		entry.Commit,
		entry.Delivery,
		entry.Status,
		entry.Message,
		startedAt.Format(time.RFC3339),
		entry.DurationSeconds,
	)
	if err != nil {
		return 0, fmt.Errorf("recording journal entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading journal entry id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, repo, ref, commit_sha, delivery, status, message, started_at, duration_seconds
		FROM builds
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry        Entry
			startedAtStr string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Repo,
			&entry.Ref,
			&entry.Commit,
			&entry.Delivery,
			&entry.Status,
			&entry.Message,
			&startedAtStr,
			&entry.DurationSeconds,
		); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}

		startedAt, err := time.Parse(time.RFC3339, startedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp: %w", err)
		}
		entry.StartedAt = startedAt
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}
	return entries, nil
}
