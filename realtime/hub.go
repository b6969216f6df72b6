// Package realtime pushes order lifecycle events to connected admin observers.
package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var errClientClosed = errors.New("realtime: client closed")

type clientState int

const (
	statePendingAuth clientState = iota
	stateOpen
	stateRejected
	stateClosed
)

// Client is one observer connection. gorilla allows a single concurrent
// writer, so every write goes through writeMu.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	state   clientState
	done    chan struct{}
	once    sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn, state: statePendingAuth, done: make(chan struct{})}
}

func (c *Client) write(messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.state == stateClosed || c.state == stateRejected {
		return errClientClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, payload)
}

func (c *Client) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, payload)
}

func (c *Client) open() {
	c.writeMu.Lock()
	if c.state == statePendingAuth {
		c.state = stateOpen
	}
	c.writeMu.Unlock()
}

// reject sends a policy-violation close frame and drops the connection.
func (c *Client) reject(reason string) {
	if len(reason) > 120 {
		reason = reason[:120]
	}
	c.writeMu.Lock()
	c.state = stateRejected
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.writeMu.Unlock()
	c.shutdown()
}

func (c *Client) close() {
	c.writeMu.Lock()
	if c.state != stateRejected {
		c.state = stateClosed
	}
	c.writeMu.Unlock()
	c.shutdown()
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Hub is the process-local set of admitted observers. It starts empty on
// every boot; events are never queued or replayed.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[*Client]struct{}), logger: logger}
}

// Broadcast writes event to every open observer and returns how many
// received it. Observers whose write fails are dropped.
func (h *Hub) Broadcast(event any) int {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode realtime event", "error", err)
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.write(websocket.TextMessage, payload); err != nil {
			h.logger.Debug("dropping realtime observer", "error", err)
			h.remove(c)
			continue
		}
		delivered++
	}
	return delivered
}

// Count reports the number of admitted observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every observer.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range targets {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.writeMu.Unlock()
		c.close()
	}
}

func (h *Hub) register(c *Client) {
	c.open()
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("realtime observer connected", "observers", n)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	if ok {
		h.logger.Info("realtime observer disconnected", "observers", n)
	}
}

// readPump consumes inbound frames until the peer goes away. Observers do
// not send commands; reading keeps pong and close handling alive.
func (h *Hub) readPump(c *Client) {
	defer h.remove(c)
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("realtime read failed", "error", err)
			}
			return
		}
	}
}

func (h *Hub) pingLoop(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		case <-c.done:
			return
		}
	}
}
