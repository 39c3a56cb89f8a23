package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"stresscam/internal/monitor"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SnapshotProvider supplies the state sent to a client when it connects
type SnapshotProvider interface {
	Latest() (*monitor.Update, bool)
	Summary() monitor.Summary
}

// Handler upgrades requests to WebSocket connections on the hub
type Handler struct {
	hub      *AffectHub
	snapshot SnapshotProvider
}

// NewHandler creates a new WebSocket handler. snapshot may be nil.
func NewHandler(hub *AffectHub, snapshot SnapshotProvider) *Handler {
	return &Handler{hub: hub, snapshot: snapshot}
}

// ServeHTTP handles WebSocket upgrade requests on /ws/affect
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.WithError(err).Warn("Upgrade error")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBufferSize)}
	h.greet(c)
	h.hub.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

// greet queues the current summary and latest update before live traffic
func (h *Handler) greet(c *client) {
	if h.snapshot == nil {
		return
	}
	if data, err := json.Marshal(NewSummaryMessage(h.snapshot.Summary())); err == nil {
		c.send <- data
	}
	if update, ok := h.snapshot.Latest(); ok {
		if data, err := json.Marshal(NewAffectMessage(update)); err == nil {
			c.send <- data
		}
	}
}

// writePump is the only writer on the connection
func (h *Handler) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.hub.logger.WithError(err).Debug("Error sending to client")
				h.hub.unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.unregister(c)
				return
			}
		}
	}
}

// readPump detects disconnection and keeps the read deadline fresh
func (h *Handler) readPump(c *client) {
	defer h.hub.unregister(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.hub.logger.WithError(err).Debug("Read error")
			}
			return
		}
	}
}
