package session

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/lbatista/gambit/pkg/audit"
)

// CapacityError reports a session creation rejected at the concurrency
// limit. Creation never queues; the caller must retry later.
type CapacityError struct {
	Limit int
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("session limit reached (%d active)", e.Limit)
}

// ClosedError reports an operation on a session that is closing or
// closed.
type ClosedError struct {
	SessionID string
}

// Error implements the error interface.
func (e *ClosedError) Error() string {
	return fmt.Sprintf("session %s is closed", e.SessionID)
}

// NotFoundError reports an unknown session id.
type NotFoundError struct {
	SessionID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.SessionID)
}

// CloseHook runs while a session shuts down, before in-flight calls are
// cancelled. The approval manager uses it to deny the session's pending
// requests.
type CloseHook func(sessionID, reason string)

// ManagerConfig bounds the session table and the idle sweep.
type ManagerConfig struct {
	// MaxSessions caps concurrently open sessions. Zero means 16.
	MaxSessions int
	// IdleAfter is how long a quiet active session stays active.
	IdleAfter time.Duration
	// CloseAfter is how long an idle session survives before closing.
	CloseAfter time.Duration
	// Trail receives lifecycle audit events; may be nil.
	Trail *audit.Store
	// OnClose hooks run during Close, before cancellation.
	OnClose []CloseHook
}

// Manager owns the session table and the idle sweep.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	max        int
	idleAfter  time.Duration
	closeAfter time.Duration
	trail      *audit.Store
	onClose    []CloseHook
	sweeper    *cron.Cron
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 16
	}
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = 10 * time.Minute
	}
	if cfg.CloseAfter <= 0 {
		cfg.CloseAfter = 30 * time.Minute
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		max:        cfg.MaxSessions,
		idleAfter:  cfg.IdleAfter,
		closeAfter: cfg.CloseAfter,
		trail:      cfg.Trail,
		onClose:    cfg.OnClose,
	}
}

// AddCloseHook registers another close hook. Used to break the
// construction cycle with the approval manager.
func (m *Manager) AddCloseHook(hook CloseHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = append(m.onClose, hook)
}

// Create opens a session bound to a workspace root. The root must exist
// and be a directory; hitting the session limit is an immediate
// rejection.
func (m *Manager) Create(workspaceRoot string) (*Session, error) {
	info, err := os.Stat(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace root %s: %w", workspaceRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", workspaceRoot)
	}

	m.mu.Lock()
	if len(m.sessions) >= m.max {
		m.mu.Unlock()
		return nil, &CapacityError{Limit: m.max}
	}
	s := newSession(uuid.New().String(), workspaceRoot)
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.record(s.ID, audit.EventSessionCreated, map[string]interface{}{"workspace": workspaceRoot})
	log.Info().Str("session", s.ID).Str("workspace", workspaceRoot).Msg("Session created")
	return s, nil
}

// Get returns the session for an id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &NotFoundError{SessionID: id}
	}
	return s, nil
}

// List returns a snapshot of all open sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close shuts a session down: close hooks deny its pending approvals,
// in-flight calls are cancelled, and the session leaves the table.
// Closing an already-closed session is a no-op.
func (m *Manager) Close(id, reason string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return &NotFoundError{SessionID: id}
	}

	cancels, first := s.beginClose()
	if !first {
		return nil
	}
	for _, hook := range m.onClose {
		hook(id, reason)
	}
	for _, cancel := range cancels {
		cancel()
	}
	s.finishClose()

	m.record(id, audit.EventSessionClosed, map[string]interface{}{"reason": reason})
	log.Info().Str("session", id).Str("reason", reason).Int("cancelled", len(cancels)).Msg("Session closed")
	return nil
}

// StartSweeper schedules the idle sweep. Stop with StopSweeper.
func (m *Manager) StartSweeper() error {
	c := cron.New()
	if _, err := c.AddFunc("@every 1m", m.Sweep); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	c.Start()
	m.sweeper = c
	return nil
}

// StopSweeper halts the idle sweep.
func (m *Manager) StopSweeper() {
	if m.sweeper != nil {
		m.sweeper.Stop()
	}
}

// Sweep transitions quiet sessions active→idle and closes sessions idle
// past the close threshold.
func (m *Manager) Sweep() {
	now := time.Now()
	for _, s := range m.List() {
		if s.markIdle(m.idleAfter, now) {
			log.Debug().Str("session", s.ID).Msg("Session idle")
			continue
		}
		if s.idleExpired(m.closeAfter, now) {
			if err := m.Close(s.ID, "idle timeout"); err != nil {
				log.Warn().Str("session", s.ID).Err(err).Msg("Idle close failed")
			}
		}
	}
}

func (m *Manager) record(sessionID string, typ audit.EventType, details map[string]interface{}) {
	if m.trail == nil {
		return
	}
	if err := m.trail.Append(sessionID, typ, "", details); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("Failed to write audit event")
	}
}
