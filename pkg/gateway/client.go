package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one connected websocket peer. Writes are serialized through
// the client's write mutex; gorilla/websocket allows only one concurrent
// writer per connection.
type Client struct {
	ID          string
	Conn        *websocket.Conn
	ConnectedAt time.Time
	IPAddress   string

	writeMu sync.Mutex
}

// WriteJSON sends one JSON message on the connection.
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

// ClientRegistry tracks connected clients and which session each one
// serves.
type ClientRegistry struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	bySession map[string]string
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients:   make(map[string]*Client),
		bySession: make(map[string]string),
	}
}

// Add registers a client.
func (r *ClientRegistry) Add(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.ID] = client
}

// Remove drops a client and every session binding pointing at it.
// Returns the ids of the sessions that lost their client.
func (r *ClientRegistry) Remove(clientID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, clientID)
	var orphaned []string
	for sessionID, cid := range r.bySession {
		if cid == clientID {
			delete(r.bySession, sessionID)
			orphaned = append(orphaned, sessionID)
		}
	}
	return orphaned
}

// Get returns a client by id.
func (r *ClientRegistry) Get(clientID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	return c, ok
}

// Bind associates a session with the client serving it. A session has at
// most one client; rebinding replaces the old association.
func (r *ClientRegistry) Bind(sessionID, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySession[sessionID] = clientID
}

// Unbind removes a session's client association.
func (r *ClientRegistry) Unbind(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySession, sessionID)
}

// ForSession returns the client serving a session.
func (r *ClientRegistry) ForSession(sessionID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cid, ok := r.bySession[sessionID]
	if !ok {
		return nil, false
	}
	c, ok := r.clients[cid]
	return c, ok
}

// All returns a snapshot of the connected clients.
func (r *ClientRegistry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
