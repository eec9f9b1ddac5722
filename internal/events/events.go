// Package events records sync and recovery outcomes in the sync_log table.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Event types written to sync_log.
const (
	SyncCompleted     = "sync.completed"
	SyncFailed        = "sync.failed"
	RecoveryCompleted = "recovery.completed"
	RecoveryFailed    = "recovery.failed"
	SnapshotExported  = "snapshot.exported"
)

// Event is one sync_log row.
type Event struct {
	ID        int64   `json:"id"`
	Timestamp string  `json:"timestamp"`
	UserID    string  `json:"userId,omitempty"`
	EventType string  `json:"eventType"`
	Payload   *string `json:"payload,omitempty"`
}

// Sink accepts structured events. *Writer is the sync_log implementation.
type Sink interface {
	Log(ctx context.Context, userID, eventType string, payload any) error
	LogFailure(ctx context.Context, userID, eventType string, cause error) error
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Writer handles writing events to the sync log
type Writer struct {
	db *sql.DB
}

// NewWriter creates a new event writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// LogEvent writes an event, inside tx when it is non-nil.
func (w *Writer) LogEvent(ctx context.Context, tx *sql.Tx, event *Event) error {
	var exec executor = w.db
	if tx != nil {
		exec = tx
	}
	_, err := exec.ExecContext(ctx,
		`INSERT INTO sync_log (user_id, event_type, payload) VALUES (?, ?, ?)`,
		event.UserID, event.EventType, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Log marshals payload and writes an event of eventType.
func (w *Writer) Log(ctx context.Context, userID, eventType string, payload any) error {
	event := &Event{UserID: userID, EventType: eventType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		s := string(data)
		event.Payload = &s
	}
	return w.LogEvent(ctx, nil, event)
}

// LogFailure writes eventType with the error message as payload.
func (w *Writer) LogFailure(ctx context.Context, userID, eventType string, cause error) error {
	return w.Log(ctx, userID, eventType, map[string]string{"error": cause.Error()})
}

// Recent returns the newest events first, optionally filtered by type.
func (w *Writer) Recent(ctx context.Context, eventType string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, timestamp, user_id, event_type, payload FROM sync_log`
	args := []any{}
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.UserID, &e.EventType, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan sync log row: %w", err)
		}
		if payload.Valid {
			p := payload.String
			e.Payload = &p
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
