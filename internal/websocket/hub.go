package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Push event names. Progress and output are reserved for streaming
// deploy logs.
const (
	EventStatusUpdate   = "status:update"
	EventDeployStart    = "deploy:start"
	EventDeployComplete = "deploy:complete"
	EventDeployProgress = "deploy:progress"
	EventDeployOutput   = "deploy:output"
)

// Client represents a connected observer.
type Client struct {
	Conn *websocket.Conn
	ID   string
	mu   sync.Mutex
}

// Message is the push-channel envelope.
type Message struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub tracks connected observers and fans events out to them. It is owned
// by the control-plane server's lifetime and passed by explicit reference,
// never exposed as ambient state.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

// Register adds an observer to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	log.Printf("[WebSocket] observer connected: %s", client.ID)
}

// Unregister removes an observer and closes its connection.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		if client.Conn != nil {
			client.Conn.Close()
		}
		log.Printf("[WebSocket] observer disconnected: %s", client.ID)
	}
}

// HasObservers reports whether anyone is listening; the status poll timer
// idles when nobody is.
func (h *Hub) HasObservers() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

// Broadcast sends an event to every connected observer. Observers whose
// send fails are pruned opportunistically.
func (h *Hub) Broadcast(event string, data interface{}) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	payload, err := json.Marshal(Message{Event: event, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		log.Printf("[WebSocket] error marshaling %s event: %v", event, err)
		return
	}

	for _, client := range clients {
		client.mu.Lock()
		err := client.Conn.WriteMessage(websocket.TextMessage, payload)
		client.mu.Unlock()
		if err != nil {
			log.Printf("[WebSocket] dropping observer %s: %v", client.ID, err)
			h.Unregister(client)
		}
	}
}

// Close disconnects every observer; called on server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.Conn != nil {
			client.Conn.Close()
		}
		delete(h.clients, client)
	}
}
