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

	"github.com/conneroisu/quire/internal/config"
	"github.com/conneroisu/quire/internal/logging"
	"github.com/conneroisu/quire/internal/reload"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period. A ping that is not answered
	// within writeWait ends the connection.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Messages queued per client before it is dropped as too slow.
	clientBuffer = 16
)

// UpdateMessage is sent to browsers when a new snapshot is published.
type UpdateMessage struct {
	Type       string    `json:"type"`
	Generation uint64    `json:"generation"`
	Warnings   int       `json:"warnings,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Client is one connected browser.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub owns the set of websocket clients and forwards reload events to
// them. Only the Run goroutine touches the client set.
type Hub struct {
	source  Source
	origins []string
	logger  logging.Logger

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client

	// ready is closed once Run has subscribed to the source.
	ready     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	count     int
	mutex     sync.RWMutex
}

// NewHub creates a hub. origins are host[:port] patterns accepted in the
// Origin header.
func NewHub(source Source, origins []string, logger logging.Logger) *Hub {
	return &Hub{
		source:     source,
		origins:    origins,
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ready:      make(chan struct{}),
		closed:     make(chan struct{}),
	}
}

// allowedOriginHosts lists the hosts browsers may connect from: the public
// base URL, the listen address and any configured origins.
func allowedOriginHosts(cfg *config.Config) []string {
	hosts := []string{
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		fmt.Sprintf("localhost:%d", cfg.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
	}
	for _, raw := range append([]string{cfg.Server.BaseURL}, cfg.Server.AllowedOrigins...) {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		}
	}

	return hosts
}

// checkOrigin requires an http(s) Origin whose host is allowed.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	for _, allowed := range h.origins {
		if u.Host == allowed {
			return true
		}
	}

	return false
}

// Ready is closed once the hub is subscribed and accepting clients.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.count
}

// Close disconnects every client and stops Run.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.closed) })
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)

		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed")

		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, clientBuffer),
		hub:  h,
	}

	select {
	case h.register <- client:
	case <-h.closed:
		conn.Close(websocket.StatusGoingAway, "server shutting down")

		return
	case <-r.Context().Done():
		conn.Close(websocket.StatusGoingAway, "")

		return
	}

	go client.writePump()
	client.readPump()
}

// Run forwards published snapshots to clients until ctx ends or Close is
// called.
func (h *Hub) Run(ctx context.Context) {
	events, cancel := h.source.Subscribe()
	defer cancel()
	defer h.Close()
	close(h.ready)

	defer func() {
		for client := range h.clients {
			h.drop(client, websocket.StatusGoingAway, "server shutting down")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closed:
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.setCount()
			h.logger.Debug(ctx, "Client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client, websocket.StatusNormalClosure, "")
				h.logger.Debug(ctx, "Client disconnected", "clients", len(h.clients))
			}

		case event, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(ctx, event)
		}
	}
}

func (h *Hub) broadcast(ctx context.Context, event reload.Event) {
	message, err := json.Marshal(UpdateMessage{
		Type:       "reload",
		Generation: event.Generation,
		Warnings:   event.Warnings,
		Timestamp:  event.At,
	})
	if err != nil {
		h.logger.Error(ctx, err, "Failed to marshal reload message")

		return
	}

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Too slow to keep up.
			h.drop(client, websocket.StatusPolicyViolation, "too slow")
		}
	}
}

func (h *Hub) drop(client *Client, code websocket.StatusCode, reason string) {
	delete(h.clients, client)
	h.setCount()
	close(client.send)
	client.conn.Close(code, reason)
}

func (h *Hub) setCount() {
	h.mutex.Lock()
	h.count = len(h.clients)
	h.mutex.Unlock()
}

// readPump discards client messages and notices disconnects. It also
// services the pong replies that writePump's pings wait for.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.closed:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, _, err := c.conn.Read(context.Background())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && status != -1 {
				c.hub.logger.Debug(context.Background(), "WebSocket closed", "status", status)
			}

			return
		}
	}
}

// writePump sends queued messages and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

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
