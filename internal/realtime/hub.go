// Package realtime fans events out to the websocket connections of a user.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/metrics"
)

const sendBuffer = 256

type Client struct {
	ID     string
	UserID uuid.UUID
	Send   chan []byte
}

func NewClient(userID uuid.UUID) *Client {
	return &Client{ID: uuid.NewString(), UserID: userID, Send: make(chan []byte, sendBuffer)}
}

type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	mu         sync.RWMutex
	log        *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		log:        log,
	}
}

// RegisterClient reports false once the hub has stopped.
func (h *Hub) RegisterClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// SendToUser sends data to every connection of the user. Slow clients are
// skipped rather than blocking the caller.
func (h *Hub) SendToUser(userID uuid.UUID, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.log.Errorw("marshal realtime payload", "error", err)
		return
	}
	h.deliver(userID, payload)
}

func (h *Hub) deliver(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.UserID != userID {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.log.Warnw("realtime buffer full, dropping event", "client", client.ID, "user", userID)
		}
	}
}

// Connections returns the number of open connections of the user.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.UserID == userID {
			n++
		}
	}
	return n
}

// Run serves register/unregister requests until ctx is done, then closes
// every remaining client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			metrics.Connections.Inc()
			h.log.Debugw("client registered", "client", client.ID, "user", client.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			if old, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(old.Send)
				metrics.Connections.Dec()
				h.log.Debugw("client unregistered", "client", client.ID)
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.Send)
				delete(h.clients, id)
				metrics.Connections.Dec()
			}
			h.mu.Unlock()
			return
		}
	}
}
