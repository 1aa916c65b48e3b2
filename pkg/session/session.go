package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lbatista/gambit/pkg/protocol"
)

// State tracks a session through its lifecycle.
type State string

const (
	StateActive  State = "active"
	StateIdle    State = "idle"
	StateClosing State = "closing"
	StateClosed  State = "closed"
)

// Message is one history entry. Seq is strictly increasing within the
// session; a tool result therefore always carries a higher seq than the
// call it answers.
type Message struct {
	Seq     int64           `json:"seq"`
	Kind    protocol.Kind   `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Session is one conversation bound to a workspace root. All mutation
// goes through the session mutex; concurrent calls of the same session
// are safe.
type Session struct {
	ID            string
	WorkspaceRoot string
	CreatedAt     time.Time

	mu           sync.Mutex
	state        State
	lastActivity time.Time
	nextSeq      int64
	history      []Message
	inFlight     map[string]context.CancelFunc
}

func newSession(id, root string) *Session {
	now := time.Now()
	return &Session{
		ID:            id,
		WorkspaceRoot: root,
		CreatedAt:     now,
		state:         StateActive,
		lastActivity:  now,
		nextSeq:       1,
		inFlight:      make(map[string]context.CancelFunc),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Touch marks activity, reviving an idle session.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
	if s.state == StateIdle {
		s.state = StateActive
	}
}

// LastActivity returns the time of the most recent activity.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Append records a history entry and returns its sequence number.
func (s *Session) Append(kind protocol.Kind, payload interface{}) (int64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s history entry: %w", kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing || s.state == StateClosed {
		return 0, &ClosedError{SessionID: s.ID}
	}
	seq := s.nextSeq
	s.nextSeq++
	s.history = append(s.history, Message{Seq: seq, Kind: kind, Payload: raw, At: time.Now()})
	s.lastActivity = time.Now()
	if s.state == StateIdle {
		s.state = StateActive
	}
	return seq, nil
}

// NextSeq reserves and returns the next sequence number without writing
// history, for envelopes that are sent but not recorded.
func (s *Session) NextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextSeq
	s.nextSeq++
	return seq
}

// History returns a copy of the recorded messages.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// TrackCall registers an executing call so Close can cancel it. It
// refuses calls once the session starts closing.
func (s *Session) TrackCall(callID string, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing || s.state == StateClosed {
		return &ClosedError{SessionID: s.ID}
	}
	s.inFlight[callID] = cancel
	return nil
}

// FinishCall drops a completed call from the in-flight set.
func (s *Session) FinishCall(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, callID)
}

// InFlight returns how many calls are currently executing.
func (s *Session) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// beginClose flips the session to closing and returns the cancel funcs of
// every in-flight call. Returns false if already closing or closed.
func (s *Session) beginClose() ([]context.CancelFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing || s.state == StateClosed {
		return nil, false
	}
	s.state = StateClosing
	cancels := make([]context.CancelFunc, 0, len(s.inFlight))
	for _, c := range s.inFlight {
		cancels = append(cancels, c)
	}
	s.inFlight = make(map[string]context.CancelFunc)
	return cancels, true
}

func (s *Session) finishClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

// markIdle transitions active→idle when the session has been quiet past
// the threshold. Returns true on transition.
func (s *Session) markIdle(threshold time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	if now.Sub(s.lastActivity) < threshold {
		return false
	}
	if len(s.inFlight) > 0 {
		return false
	}
	s.state = StateIdle
	return true
}

// idleExpired reports whether an idle session has been quiet long enough
// to close.
func (s *Session) idleExpired(threshold time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateIdle && now.Sub(s.lastActivity) >= threshold
}
