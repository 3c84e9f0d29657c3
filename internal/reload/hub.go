package reload

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/siteforge/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 64
)

// Message is the frame sent to browsers.
type Message struct {
	Type    Kind      `json:"type"`
	Task    string    `json:"task,omitempty"`
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message,omitempty"`
	HTML    string    `json:"html,omitempty"`
	Time    time.Time `json:"time"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps the connected browsers and fans messages out to them.
//
// A single goroutine owns registration and broadcasting; clients whose send
// buffer is full are dropped rather than blocking the others.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client

	register   chan *client
	unregister chan string
	broadcast  chan []byte

	originPatterns []string
	logger         logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewHub starts a hub. originPatterns are host patterns accepted in the
// Origin header in addition to the request host.
func NewHub(logger logging.Logger, originPatterns ...string) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:        make(map[string]*client),
		register:       make(chan *client, 32),
		unregister:     make(chan string, 32),
		broadcast:      make(chan []byte, 256),
		originPatterns: originPatterns,
		logger:         logger.WithComponent("reload"),
		ctx:            ctx,
		cancel:         cancel,
	}
	go h.run()
	return h
}

// ServeHTTP upgrades the request to a websocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// Broadcast sends msg to every connected client.
func (h *Hub) Broadcast(msg Message) error {
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := h.ctx.Err(); err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client and stops the hub.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.cancel()
		h.mu.Lock()
		defer h.mu.Unlock()
		for id, c := range h.clients {
			delete(h.clients, id)
			close(c.send)
			c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
	})
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug(h.ctx, "client connected", "client", c.id, "total", n)

		case id := <-h.unregister:
			h.remove(id, websocket.StatusNormalClosure)

		case data := <-h.broadcast:
			var slow []string
			h.mu.RLock()
			for id, c := range h.clients {
				select {
				case c.send <- data:
				default:
					slow = append(slow, id)
				}
			}
			h.mu.RUnlock()
			for _, id := range slow {
				h.remove(id, websocket.StatusPolicyViolation)
			}
		}
	}
}

func (h *Hub) remove(id string, code websocket.StatusCode) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		c.conn.Close(code, "")
		h.logger.Debug(h.ctx, "client disconnected", "client", id, "total", n)
	}
}

// readPump drains the connection until the peer goes away. Browsers never
// send anything meaningful.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c.id:
		case <-h.ctx.Done():
		}
	}()
	for {
		if _, _, err := c.conn.Read(h.ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && h.ctx.Err() == nil {
				h.logger.Debug(h.ctx, "websocket read ended", "client", c.id, "error", err.Error())
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(h.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
