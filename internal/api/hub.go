package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/argo-algo/internal/algo"
	"github.com/rxtech-lab/argo-algo/internal/logger"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	clientBuffer   = 64
	DefaultBacklog = 50
)

// Notification is the message pushed to websocket clients.
type Notification struct {
	Level   algo.NotifyLevel `json:"level"`
	Message string           `json:"message"`
	Time    time.Time        `json:"time"`
}

// Hub broadcasts notifications to connected websocket clients. New clients first receive
// the most recent notifications.
type Hub struct {
	upgrader websocket.Upgrader
	log      *logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
	backlog [][]byte
	limit   int
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(log *logger.Logger, backlog int) *Hub {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if backlog < 0 {
		backlog = 0
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		log:     log,
		now:     time.Now,
		mu:      sync.Mutex{},
		clients: make(map[*client]struct{}),
		backlog: nil,
		limit:   backlog,
		closed:  false,
	}
}

// Notify implements host.Notifier. It never blocks: a client whose buffer is full is dropped.
func (h *Hub) Notify(level algo.NotifyLevel, message string) {
	raw, err := json.Marshal(Notification{Level: level, Message: message, Time: h.now().UTC()})
	if err != nil {
		h.log.Warn("failed to encode notification", zap.Error(err))

		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.limit > 0 {
		h.backlog = append(h.backlog, raw)
		if len(h.backlog) > h.limit {
			h.backlog = h.backlog[len(h.backlog)-h.limit:]
		}
	}

	for c := range h.clients {
		select {
		case c.send <- raw:
		default:
			h.log.Warn("dropping slow websocket client", zap.String("remote", c.conn.RemoteAddr().String()))
			h.removeLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// ServeHTTP upgrades the request and streams notifications until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))

		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer+h.limit)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()

		return
	}

	for _, raw := range h.backlog {
		c.send <- raw
	}

	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Debug("websocket client connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	close(c.send)
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(c)
		h.mu.Unlock()
		c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("websocket read failed", zap.Error(err))
			}

			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
