// Package audit keeps an append-only ledger of cancellation attempts so
// that an operator can see what the assistant cancelled, and what it
// looked for and did not find.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// timestampLayout has fixed-width fractional seconds so that stored
// timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Outcomes of a cancellation attempt.
const (
	OutcomeCancelled = "cancelled"
	OutcomeNotFound  = "not_found"
	OutcomeFailed    = "failed"
)

// Entry is one cancellation attempt. Date and Time are the values the
// model supplied; EventUUID and EventName are empty when nothing matched.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	EventUUID string    `json:"event_uuid,omitempty"`
	EventName string    `json:"event_name,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
}

// Store is an append-only SQLite ledger. All public methods are safe for
// concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore opens or creates a ledger at the given database path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cancellations (
		id          TEXT PRIMARY KEY,
		timestamp   TEXT NOT NULL,
		request_id  TEXT,
		date        TEXT NOT NULL,
		time        TEXT NOT NULL,
		event_uuid  TEXT,
		event_name  TEXT,
		outcome     TEXT NOT NULL,
		detail      TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_cancellations_timestamp ON cancellations(timestamp);
	CREATE INDEX IF NOT EXISTS idx_cancellations_outcome ON cancellations(outcome);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists an entry. If e.ID is empty, a UUIDv7 is generated; if
// e.Timestamp is zero, the current time is used.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate audit entry ID: %w", err)
		}
		e.ID = id.String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cancellations
			(id, timestamp, request_id, date, time, event_uuid, event_name, outcome, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Timestamp.UTC().Format(timestampLayout),
		e.RequestID,
		e.Date,
		e.Time,
		e.EventUUID,
		e.EventName,
		e.Outcome,
		e.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, COALESCE(request_id, ''), date, time,
			COALESCE(event_uuid, ''), COALESCE(event_name, ''), outcome, COALESCE(detail, '')
		 FROM cancellations
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.RequestID, &e.Date, &e.Time,
			&e.EventUUID, &e.EventName, &e.Outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse audit timestamp %q: %w", ts, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByOutcome returns the number of entries per outcome recorded at or
// after since.
func (s *Store) CountByOutcome(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*)
		 FROM cancellations
		 WHERE timestamp >= ?
		 GROUP BY outcome`,
		since.UTC().Format(timestampLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query audit counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan audit count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}
