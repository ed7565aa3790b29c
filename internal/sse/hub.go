package sse

import (
	"encoding/json"
	"sync"
	"time"

	"facegate/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// Client is a single connected SSE client: a channel of pre-serialized
// event payloads.
type Client chan []byte

// Hub fans audit events out to connected SSE clients.
type Hub struct {
	clients    map[Client]bool
	broadcast  chan []byte
	register   chan Client
	unregister chan Client
	mu         sync.Mutex
}

// EventData is the lean wire form of an audit event pushed over SSE.
type EventData struct {
	Timestamp time.Time       `json:"timestamp"`
	Status    string          `json:"status"`
	UserName  string          `json:"user_name,omitempty"`
	Score     *float64        `json:"score,omitempty"`
	Note      string          `json:"note,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 16),
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
	}
}

// Run starts the hub's processing loop. Run it in its own goroutine.
func (h *Hub) Run() {
	log.Info("SSE hub started")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Debugf("SSE client registered, total: %d", total)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Debugf("SSE client unregistered, total: %d", total)
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				// Never block the hub on a slow client.
				select {
				case client <- message:
				default:
					log.Warn("SSE client channel full, dropping message")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a new client to the hub.
func (h *Hub) Register(client Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client Client) {
	h.unregister <- client
}

// Broadcast sends a message to all registered clients without blocking the
// caller.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Warn("SSE broadcast channel full, message dropped")
	}
}

// PublishEvent serializes an audit event and broadcasts it. Satisfies the
// audit publisher interface.
func (h *Hub) PublishEvent(event models.EventLog) {
	data := EventData{
		Timestamp: event.Timestamp,
		Status:    event.Status,
		UserName:  event.UserName,
		Score:     event.Score,
		Note:      event.Note,
		Details:   json.RawMessage(event.Details),
	}

	payload, err := json.Marshal(data)
	if err != nil {
		log.Errorf("Failed to marshal SSE event data: %v", err)
		return
	}
	h.Broadcast(payload)
}
