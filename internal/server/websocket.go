package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/shroot/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Message types sent to browsers.
const (
	MessageReload     = "reload"
	MessageFragment   = "fragment"
	MessageRegistered = "registered"
	MessageIssues     = "issues"
)

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string      `json:"type"`
	Page      string      `json:"page,omitempty"`
	Target    string      `json:"target,omitempty"`
	Content   string      `json:"content,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Client is one connected browser.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	page string
}

// Hub fans messages out to connected clients.
type Hub struct {
	clients      map[*Client]struct{}
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *Client
	logger       logging.Logger
	origins      func(r *http.Request) bool
	done         chan struct{}
}

// NewHub creates a hub. allowOrigin decides which browsers may connect.
func NewHub(logger logging.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.WithComponent("websocket"),
		origins:    allowOrigin,
		done:       make(chan struct{}),
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Run processes registrations and broadcasts until ctx is done, then
// closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.closeAll()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clientsMutex.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(ctx, "Client connected", "clients", count, "page", client.page)

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.clientsMutex.RLock()
			var slow []*Client
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					slow = append(slow, client)
				}
			}
			h.clientsMutex.RUnlock()

			for _, client := range slow {
				h.remove(client)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.logger.Debug(context.Background(), "Client disconnected", "clients", len(h.clients))
}

func (h *Hub) closeAll() {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()
	for client := range h.clients {
		close(client.send)
		client.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	h.clients = make(map[*Client]struct{})
}

// Broadcast queues msg for every client. It never blocks; when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msg UpdateMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(context.Background(), err, "Failed to marshal message", "type", msg.Type)
		data = []byte(`{"type":"reload"}`)
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn(context.Background(), nil, "Broadcast queue full, dropping message", "type", msg.Type)
	}
}

// ServeHTTP upgrades the request to a websocket.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.origins != nil && !h.origins(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// the origin was checked above
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		page: r.URL.Query().Get("page"),
	}

	go client.writePump()
	go client.readPump()

	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// readPump drains the connection so close frames and pings are handled.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), pongWait)
		_, _, err := c.conn.Read(ctx)
		cancel()
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				c.hub.logger.Debug(context.Background(), "WebSocket read ended", "error", err.Error())
			}
			return
		}
	}
}

// writePump sends queued messages and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.hub.logger.Debug(context.Background(), "WebSocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// OriginChecker accepts same-host origins on the configured port plus the
// explicitly allowed origins.
func OriginChecker(host string, port int, allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return false
		}
		for _, a := range allowed {
			if origin == a {
				return true
			}
		}

		originURL, err := url.Parse(origin)
		if err != nil || (originURL.Scheme != "http" && originURL.Scheme != "https") {
			return false
		}
		for _, candidate := range []string{
			fmt.Sprintf("%s:%d", host, port),
			fmt.Sprintf("localhost:%d", port),
			fmt.Sprintf("127.0.0.1:%d", port),
		} {
			if originURL.Host == candidate {
				return true
			}
		}
		// requests made against the listener address, e.g. in tests
		return r.Host != "" && originURL.Host == r.Host
	}
}
