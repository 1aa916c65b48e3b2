package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// EventType classifies audit trail entries.
type EventType string

const (
	EventApprovalResolved EventType = "approval_resolved"
	EventSecurityRejected EventType = "security_rejected"
	EventSessionCreated   EventType = "session_created"
	EventSessionClosed    EventType = "session_closed"
	EventToolExecuted     EventType = "tool_executed"
)

// Event is one append-only audit record. Details holds event-specific
// fields: the resolver and final parameters for approvals, the error for
// security rejections.
type Event struct {
	ID        int64                  `json:"id"`
	SessionID string                 `json:"session_id"`
	Type      EventType              `json:"type"`
	Tool      string                 `json:"tool,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Store persists the audit trail in a local sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the audit database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			type       TEXT NOT NULL,
			tool       TEXT NOT NULL DEFAULT '',
			details    TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_events(session_id, id);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Audit store opened")
	return &Store{db: db}, nil
}

// Append writes one event. Audit failures are logged but must not block
// the call path, so callers typically ignore the returned error after
// logging it.
func (s *Store) Append(sessionID string, typ EventType, tool string, details map[string]interface{}) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO audit_events (session_id, type, tool, details) VALUES (?, ?, ?, ?)`,
		sessionID, string(typ), tool, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// BySession returns a session's events in append order, newest capped at
// limit (0 means no cap).
func (s *Store) BySession(sessionID string, limit int) ([]Event, error) {
	query := `SELECT id, session_id, type, tool, details, created_at
		FROM audit_events WHERE session_id = ? ORDER BY id`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var details string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &e.Tool, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			log.Warn().Int64("id", e.ID).Err(err).Msg("Skipping malformed audit details")
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
