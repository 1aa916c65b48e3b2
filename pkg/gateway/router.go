package gateway

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lbatista/gambit/pkg/protocol"
)

// EnvelopeHandler processes one inbound envelope after reordering.
type EnvelopeHandler func(client *Client, env protocol.Envelope) error

// Router dispatches inbound envelopes by kind, restoring per-session
// sequence order first. Handlers are registered at wiring time and fixed
// afterwards.
type Router struct {
	mu         sync.RWMutex
	handlers   map[protocol.Kind]EnvelopeHandler
	reorderers map[string]*protocol.Reorderer
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		handlers:   make(map[protocol.Kind]EnvelopeHandler),
		reorderers: make(map[string]*protocol.Reorderer),
	}
}

// Handle registers the handler for an envelope kind.
func (r *Router) Handle(kind protocol.Kind, handler EnvelopeHandler) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown envelope kind %q", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[kind]; dup {
		return fmt.Errorf("handler for %s already registered", kind)
	}
	r.handlers[kind] = handler
	return nil
}

// Route pushes the envelope through the session's reorder buffer and
// dispatches every envelope that became deliverable, in sequence order.
func (r *Router) Route(client *Client, env protocol.Envelope) error {
	if !env.Kind.Valid() {
		return fmt.Errorf("unknown envelope kind %q", env.Kind)
	}
	if env.SessionID == "" {
		return fmt.Errorf("envelope missing session id")
	}

	ready, err := r.reorderer(env.SessionID).Push(env)
	if err != nil {
		return err
	}

	for _, e := range ready {
		r.mu.RLock()
		handler, ok := r.handlers[e.Kind]
		r.mu.RUnlock()
		if !ok {
			log.Warn().Str("kind", string(e.Kind)).Msg("No handler for envelope kind")
			continue
		}
		if err := handler(client, e); err != nil {
			return err
		}
	}
	return nil
}

// DropSession discards a closed session's reorder state.
func (r *Router) DropSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reorderers, sessionID)
}

func (r *Router) reorderer(sessionID string) *protocol.Reorderer {
	r.mu.RLock()
	ro, ok := r.reorderers[sessionID]
	r.mu.RUnlock()
	if ok {
		return ro
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ro, ok := r.reorderers[sessionID]; ok {
		return ro
	}
	ro = protocol.NewReorderer(1, 0)
	r.reorderers[sessionID] = ro
	return ro
}
