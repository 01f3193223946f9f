// Package eventlog records session lifecycle events to the database for
// debugging and tuning. Logging is best effort: without a database configured
// every call is a no-op, and failures never propagate into the pipeline.
package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType identifies a session lifecycle event.
type EventType string

const (
	EventSessionStarted    EventType = "session_started"
	EventTranscriptFinal   EventType = "transcript_final"
	EventAnalysisCompleted EventType = "analysis_completed"
	EventFallbackUsed      EventType = "fallback_used"
	EventClassifierError   EventType = "classifier_error"
	EventTransportError    EventType = "transport_error"
	EventSessionEnded      EventType = "session_ended"
)

// Logger writes session events to the database.
type Logger struct {
	db *pgxpool.Pool
}

// New creates an event logger. db may be nil; the logger then discards
// everything.
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes one event synchronously.
func (l *Logger) Log(ctx context.Context, sessionID string, eventType EventType, data map[string]any) error {
	if l == nil || l.db == nil || sessionID == "" {
		return nil
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO session_events (session_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, sessionID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller. Safe on a nil Logger.
func (l *Logger) LogAsync(sessionID string, eventType EventType, data map[string]any) {
	if l == nil || l.db == nil || sessionID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, sessionID, eventType, data)
	}()
}
