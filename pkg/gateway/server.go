package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/lbatista/gambit/pkg/protocol"
)

// SessionOpener creates a session for a workspace root and returns its id.
type SessionOpener func(workspaceRoot string) (string, error)

// SessionCloser closes a session with a reason.
type SessionCloser func(sessionID, reason string) error

// Config holds server configuration.
type Config struct {
	Port          int
	Router        *Router
	OpenSession   SessionOpener
	CloseSession  SessionCloser
	WriteDeadline time.Duration
}

// Server carries session traffic over websocket connections. Each client
// connection serves one or more sessions; envelopes are routed inbound
// through the Router and sent outbound with Send.
type Server struct {
	port          int
	server        *http.Server
	upgrader      websocket.Upgrader
	clients       *ClientRegistry
	router        *Router
	openSession   SessionOpener
	closeSession  SessionCloser
	writeDeadline time.Duration

	shutdownMu     sync.RWMutex
	isShuttingDown bool
}

// NewServer creates a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if cfg.OpenSession == nil {
		return nil, fmt.Errorf("session opener is required")
	}
	if cfg.CloseSession == nil {
		return nil, fmt.Errorf("session closer is required")
	}
	if cfg.WriteDeadline <= 0 {
		cfg.WriteDeadline = 10 * time.Second
	}

	return &Server{
		port:          cfg.Port,
		clients:       NewClientRegistry(),
		router:        cfg.Router,
		openSession:   cfg.OpenSession,
		closeSession:  cfg.CloseSession,
		writeDeadline: cfg.WriteDeadline,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Start begins serving. It does not block.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	log.Info().Int("port", s.port).Msg("Starting gateway server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Gateway server error")
		}
	}()
	return nil
}

// Stop gracefully stops the server, closing every client connection.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	log.Info().Msg("Shutting down gateway server")

	for _, client := range s.clients.All() {
		client.Conn.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	log.Info().Msg("Gateway server stopped")
	return nil
}

// Send delivers an envelope to the client serving its session.
func (s *Server) Send(env protocol.Envelope) error {
	client, ok := s.clients.ForSession(env.SessionID)
	if !ok {
		return fmt.Errorf("no client connected for session %s", env.SessionID)
	}
	client.Conn.SetWriteDeadline(time.Now().Add(s.writeDeadline))
	return client.WriteJSON(env)
}

// BindSession associates a session with a connected client so outbound
// envelopes reach it.
func (s *Server) BindSession(sessionID, clientID string) error {
	if _, ok := s.clients.Get(clientID); !ok {
		return fmt.Errorf("unknown client %s", clientID)
	}
	s.clients.Bind(sessionID, clientID)
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &Client{
		ID:          clientID,
		Conn:        conn,
		ConnectedAt: time.Now(),
		IPAddress:   r.RemoteAddr,
	}
	s.clients.Add(client)

	log.Info().Str("clientId", clientID).Str("ip", r.RemoteAddr).Msg("Client connected")

	go s.handleClient(client)
}

func (s *Server) handleClient(client *Client) {
	defer func() {
		client.Conn.Close()
		orphaned := s.clients.Remove(client.ID)
		for _, sessionID := range orphaned {
			s.router.DropSession(sessionID)
			if err := s.closeSession(sessionID, "client disconnected"); err != nil {
				log.Warn().Str("session", sessionID).Err(err).Msg("Failed to close orphaned session")
			}
		}
		log.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("clientId", client.ID).Msg("WebSocket error")
			}
			break
		}
		s.handleMessage(client, message)
	}
}

func (s *Server) handleMessage(client *Client, message []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		s.sendError(client, "", "malformed", "invalid envelope: "+err.Error())
		return
	}

	// First envelope of a session on this connection claims it.
	if _, bound := s.clients.ForSession(env.SessionID); !bound && env.SessionID != "" {
		s.clients.Bind(env.SessionID, client.ID)
	}

	if err := s.router.Route(client, env); err != nil {
		log.Warn().
			Str("clientId", client.ID).
			Str("session", env.SessionID).
			Str("kind", string(env.Kind)).
			Err(err).
			Msg("Failed to route envelope")
		s.sendError(client, env.SessionID, "routing", err.Error())
	}
}

func (s *Server) sendError(client *Client, sessionID, code, message string) {
	env, err := protocol.NewEnvelope(protocol.KindError, sessionID, 0, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	if err := client.WriteJSON(env); err != nil {
		log.Error().Err(err).Str("clientId", client.ID).Msg("Failed to send error envelope")
	}
}

type openSessionRequest struct {
	WorkspaceRoot string `json:"workspaceRoot"`
	ClientID      string `json:"clientId,omitempty"`
}

type openSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// handleSessions opens sessions over plain HTTP: POST {workspaceRoot}
// returns {sessionId}. The websocket client then claims the session by
// sending its first envelope.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sessionID, err := s.openSession(req.WorkspaceRoot)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if req.ClientID != "" {
		s.clients.Bind(sessionID, req.ClientID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(openSessionResponse{SessionID: sessionID}); err != nil {
		log.Error().Err(err).Msg("Failed to encode session response")
	}
}
