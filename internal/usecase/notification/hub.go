package notification

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/errors"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the fronting API layer.
		return true
	},
}

// Hub owns the WebSocket connections that carry fill notifications.
// Each client is registered on the dispatcher under its user, so the hub
// only ever delivers a user's own fills to them.
type Hub struct {
	dispatcher *Dispatcher
	logger     logger.Interface

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHub creates a hub feeding from the dispatcher.
func NewHub(dispatcher *Dispatcher, logger logger.Interface) *Hub {
	return &Hub{
		dispatcher: dispatcher,
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

// Run processes client registration until ctx is cancelled, then closes
// every remaining connection. Once Run has returned, ServeWS and client
// pumps observe the done channel instead of blocking on the hub.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.dispatcher.Register(client.userID, client)
			h.logger.Info("ws client connected",
				logger.Field{Key: "userID", Value: client.userID},
				logger.Field{Key: "total", Value: total},
			)

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
			}
			total := len(h.clients)
			h.mu.Unlock()
			if ok {
				h.dispatcher.Unregister(client.userID, client)
				client.close()
				h.logger.Info("ws client disconnected",
					logger.Field{Key: "userID", Value: client.userID},
					logger.Field{Key: "total", Value: total},
				)
			}

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.dispatcher.Unregister(client.userID, client)
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// ServeWS upgrades the request and attaches the connection to the user's
// fill stream. The user is identified by the fronting layer and passed in
// the user_id query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(err, logger.Field{Key: "action", Value: "ws_upgrade"})
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Client is one WebSocket connection belonging to a user. Its buffered send
// channel implements the dispatcher's Channel contract: a full buffer fails
// the send instead of blocking settlement.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Send queues a payload for delivery. Non-blocking, and safe against a
// concurrent disconnect: once the client is closed the send fails instead
// of hitting a closed channel.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.NewTracer("ws client closed")
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errors.NewTracer("ws send buffer full")
	}
}

// close shuts the send channel exactly once. Only the hub calls this, after
// the client is removed from the dispatcher.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump drains the connection so pings and close frames are processed.
// Inbound payloads are ignored; the stream is one-way.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("ws read error",
					logger.Field{Key: "userID", Value: c.userID},
					logger.Field{Key: "error", Value: err.Error()},
				)
			}
			return
		}
	}
}

// writePump pushes queued payloads and keepalive pings to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
