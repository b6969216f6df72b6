package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const connectedMessage = "Realtime order updates connected"

// Authenticator decides whether a connection may observe order events.
type Authenticator interface {
	AdmitObserver(adminKey, token string) error
}

// Handshake is the first frame an admitted observer receives.
type Handshake struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

type Handler struct {
	hub      *Hub
	auth     Authenticator
	upgrader websocket.Upgrader
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler builds the websocket endpoint. checkOrigin may be nil to accept
// any origin.
func NewHandler(hub *Hub, auth Authenticator, checkOrigin func(*http.Request) bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Serve upgrades the request, admits or rejects the observer and then blocks
// reading until the connection ends.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", c.ClientIP())
		return
	}
	client := newClient(conn)

	if err := h.auth.AdmitObserver(c.Query("adminKey"), c.Query("token")); err != nil {
		h.logger.Info("realtime observer rejected", "remote", c.ClientIP(), "reason", err.Error())
		client.reject("Unauthorized")
		return
	}

	err = client.writeJSON(Handshake{
		Type:      "connected",
		Timestamp: h.now().UTC(),
		Message:   connectedMessage,
	})
	if err != nil {
		client.close()
		return
	}

	h.hub.register(client)
	go h.hub.pingLoop(client)
	h.hub.readPump(client)
}
