package websocket

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nanooro/dagnerai/utils/log"
)

// Hub tracks connected clients by chat session.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	log.WithCtx(client.ctx).Debug("New client registered", zap.Int("clients", h.ClientCount()))
}

// Unregister removes and closes client.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if ok {
		client.Close()
		log.WithCtx(client.ctx).Debug("Client unregistered", zap.Int("clients", h.ClientCount()))
	}
}

// SendToSession delivers message to every client attached to sessionID.
func (h *Hub) SendToSession(sessionID string, message []byte) error {
	sent := 0
	for _, client := range h.snapshot() {
		if client.SessionID() != sessionID || client.IsClosed() {
			continue
		}
		if err := client.SendMessage(message); err != nil {
			log.WithCtx(client.ctx).Warn("Failed to queue message", zap.Error(err))
			continue
		}
		sent++
	}
	if sent == 0 {
		return fmt.Errorf("no client attached to session %s", sessionID)
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}
