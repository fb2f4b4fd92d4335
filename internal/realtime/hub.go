// Package realtime is the websocket transport: it carries inbound events to the room
// coordinator and delivers outbound events to individual connections.
package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
	// sendBuffer is the per-connection outbound queue length.
	sendBuffer = 256
)

// Hub maps connection ids to live websocket clients and implements rooms.Notifier.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("conn_id", c.ID), zap.Int("clients", n))
}

// Unregister removes a client and closes its outbound queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.ID]; ok && cur == c {
		delete(h.clients, c.ID)
	}
	h.mu.Unlock()
	c.closeSend()
	h.logger.Debug("client disconnected", zap.String("conn_id", c.ID))
}

// Send queues one event for one connection without blocking. A client whose queue is full
// is cut off; its read loop then ends and the coordinator sees a disconnect.
func (h *Hub) Send(connID string, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal outbound event", zap.String("event", event), zap.Error(err))
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	var full bool
	select {
	case c.send <- msg:
	default:
		full = true
	}
	h.mu.RUnlock()

	if full {
		h.logger.Warn("client send buffer full, dropping connection", zap.String("conn_id", connID), zap.String("event", event))
		h.Unregister(c)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
