// Package stream broadcasts live skin sensor state to WebSocket
// clients.
//
// The driver is local and single-user, so a simple in-memory hub is
// enough: clients register on upgrade, a publisher goroutine snapshots
// the sensor at a fixed rate and fan-outs one JSON message to every
// client.
package stream

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// MsgState is the message type of periodic state snapshots.
const MsgState = "state"

// PatchSnapshot is the live state of one patch: its smoothed cell
// values in layout order and the pressure aggregate.
type PatchSnapshot struct {
	Patch     int       `json:"patch"`
	Cells     []float64 `json:"cells"`
	Magnitude float64   `json:"magnitude"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
}

// Snapshot is one broadcast frame of sensor state.
type Snapshot struct {
	Time        float64          `json:"time"`
	Patches     []PatchSnapshot  `json:"patches"`
	Calibrating bool             `json:"calibrating"`
	Tally       map[string]int64 `json:"tally"`
}

// Message is the event envelope sent over WebSocket.  Clients switch on
// Type; Data carries the sensor snapshot for MsgState messages.
type Message struct {
	Type string    `json:"type"`
	Data *Snapshot `json:"data,omitempty"`
}

// Client wraps a websocket connection with a per-connection write mutex;
// gorilla requires that writes are not concurrent on the same Conn.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Send writes one message as JSON to this client.
func (c *Client) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Hub is a broadcast hub over a set of WebSocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Add registers a connection and returns its Client wrapper.
func (h *Hub) Add(conn *websocket.Conn) *Client {
	c := &Client{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Remove unregisters a client and closes its connection.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.conn.Close()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends one message to all connected clients.  Failures are
// ignored; each connection's read loop notices disconnects and removes
// the client.
func (h *Hub) Broadcast(msg Message) {
	// Marshal once for consistency across clients.
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.mu.Lock()
		_ = c.conn.WriteMessage(websocket.TextMessage, b)
		c.mu.Unlock()
	}
}
