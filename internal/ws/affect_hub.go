package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"stresscam/internal/monitor"
)

// clientBufferSize is how many messages may queue for a slow client before
// new ones are skipped for it
const clientBufferSize = 16

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// AffectHub fans live affect updates out to WebSocket clients
type AffectHub struct {
	clients map[*client]bool
	mu      sync.RWMutex
	skipped atomic.Uint64
	logger  *logrus.Entry
}

// NewAffectHub creates a new hub
func NewAffectHub(logger *logrus.Logger) *AffectHub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AffectHub{
		clients: make(map[*client]bool),
		logger:  logger.WithField("component", "ws"),
	}
}

func (h *AffectHub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{"remote": c.conn.RemoteAddr().String(), "clients": count}).Info("Client registered")
}

func (h *AffectHub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		c.close()
		h.logger.WithField("remote", c.conn.RemoteAddr().String()).Info("Client unregistered")
	}
}

// HasClients returns true if any client is connected
func (h *AffectHub) HasClients() bool {
	return h.ClientCount() > 0
}

// ClientCount returns the number of connected clients
func (h *AffectHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Skipped returns how many messages were not queued because a client was full
func (h *AffectHub) Skipped() uint64 {
	return h.skipped.Load()
}

// Broadcast queues a message for every client without blocking
func (h *AffectHub) Broadcast(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- message:
		default:
			h.skipped.Add(1)
		}
	}
}

// BroadcastJSON marshals v and broadcasts it
func (h *AffectHub) BroadcastJSON(v any) {
	if !h.HasClients() {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		h.logger.WithError(err).Error("Error marshaling message")
		return
	}
	h.Broadcast(data)
}

// OnUpdate implements monitor.UpdateHandler
func (h *AffectHub) OnUpdate(update *monitor.Update) {
	h.BroadcastJSON(NewAffectMessage(update))
}

// Close disconnects every client
func (h *AffectHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}
