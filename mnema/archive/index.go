package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// IndexEntry is the queryable row kept alongside the JSONL archive so
// sessions can be listed without parsing the whole file.
type IndexEntry struct {
	SessionID   string
	StartedAt   time.Time
	EndedAt     time.Time
	Title       string
	TokenCount  int
	DriftEvents int
	RecordPath  string
}

// SessionIndex mirrors archive records into the session_index table.
type SessionIndex struct {
	db *sql.DB
}

// NewSessionIndex wraps an open database. Migrations must already have run.
func NewSessionIndex(db *sql.DB) *SessionIndex {
	return &SessionIndex{db: db}
}

// Upsert inserts or replaces the index row for a session.
func (si *SessionIndex) Upsert(ctx context.Context, entry IndexEntry) error {
	if entry.SessionID == "" {
		return fmt.Errorf("archive: session id required")
	}
	_, err := si.db.ExecContext(ctx, `
		INSERT INTO session_index (session_id, started_at, ended_at, title, token_count, drift_events, record_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			ended_at = excluded.ended_at,
			title = excluded.title,
			token_count = excluded.token_count,
			drift_events = excluded.drift_events,
			record_path = excluded.record_path`,
		entry.SessionID, entry.StartedAt, entry.EndedAt, entry.Title,
		entry.TokenCount, entry.DriftEvents, entry.RecordPath)
	if err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

// List returns index rows newest first.
func (si *SessionIndex) List(ctx context.Context, limit int) ([]IndexEntry, error) {
	rows, err := si.db.QueryContext(ctx, `
		SELECT session_id, started_at, ended_at, title, token_count, drift_events, record_path
		FROM session_index
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var entries []IndexEntry
	for rows.Next() {
		var e IndexEntry
		var ended sql.NullTime
		if err := rows.Scan(&e.SessionID, &e.StartedAt, &ended, &e.Title,
			&e.TokenCount, &e.DriftEvents, &e.RecordPath); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		if ended.Valid {
			e.EndedAt = ended.Time
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes a session's index row.
func (si *SessionIndex) Delete(ctx context.Context, sessionID string) error {
	_, err := si.db.ExecContext(ctx, `DELETE FROM session_index WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session index row: %w", err)
	}
	return nil
}
