package ws

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"finance_notification_service/internal/domain/notification"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// clientConn wraps a gorilla connection with a write mutex so registry
// sends and read-loop replies never write concurrently.
type clientConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *clientConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *clientConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}

func (c *clientConn) Close() error {
	return c.ws.Close()
}

// defaultReadWait bounds how long a connection may stay silent.
// Clients send keepalive pings well inside this window, so a
// connection that stays quiet longer is dead and gets dropped from
// the registry instead of lingering until a send to it fails.
const defaultReadWait = 60 * time.Second

// Handler upgrades HTTP requests to websocket connections and keeps
// the registry in sync with their lifecycle. Authentication of the
// owner id is an outer-surface concern and happens before this
// handler.
type Handler struct {
	registry *Registry
	upgrader websocket.Upgrader
	logger   *logrus.Logger
	readWait time.Duration
}

func NewHandler(registry *Registry, logger *logrus.Logger) *Handler {
	return &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:   logger,
		readWait: defaultReadWait,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ownerID, err := strconv.ParseInt(r.URL.Query().Get("owner"), 10, 64)
	if err != nil || ownerID <= 0 {
		http.Error(w, "missing or invalid owner", http.StatusBadRequest)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := &clientConn{ws: raw}
	h.registry.Register(ownerID, conn)
	h.logger.WithField("owner_id", ownerID).Debug("websocket connected")

	h.readLoop(ownerID, conn)

	h.registry.Unregister(ownerID, conn)
	_ = conn.Close()
	h.logger.WithField("owner_id", ownerID).Debug("websocket disconnected")
}

// readLoop drains client messages until the connection dies or stays
// silent past the read deadline. Clients only ever send keepalive
// pings; anything else is ignored.
func (h *Handler) readLoop(ownerID int64, conn *clientConn) {
	for {
		_ = conn.ws.SetReadDeadline(time.Now().Add(h.readWait))
		var msg map[string]any
		if err := conn.ws.ReadJSON(&msg); err != nil {
			return
		}
		if msg["type"] == "ping" {
			env := notification.Envelope{Type: "pong", Timestamp: time.Now().UTC()}
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	}
}
