// Package websocket fans daemon events out to connected UI surfaces (popup,
// injected page UI) and feeds their action messages back into the daemon.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Local daemon; extension origins vary per browser
	},
}

// incomingMessage wraps a message from a client.
type incomingMessage struct {
	client  *Client
	message []byte
}

// MessageHandler processes an action message from a UI client and returns the
// reply payload. A nil handler drops all inbound frames.
type MessageHandler func(action string, payload json.RawMessage) (interface{}, error)

// Hub manages WebSocket connections and broadcasts.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	incoming   chan incomingMessage
	mu         sync.RWMutex
	onMessage  MessageHandler
}

// Client represents a WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// inboundFrame is the envelope UI clients send: the same flat action messages
// the HTTP endpoint accepts, plus an optional requestId echoed on the reply.
type inboundFrame struct {
	Action    string `json:"action"`
	RequestID string `json:"requestId,omitempty"`
}

// replyFrame answers an inbound frame on the same connection.
type replyFrame struct {
	Action    string      `json:"action"`
	RequestID string      `json:"requestId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan incomingMessage, 256),
	}
}

// SetMessageHandler registers the handler for inbound action messages.
func (h *Hub) SetMessageHandler(handler MessageHandler) {
	h.onMessage = handler
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			// Full lock: slow clients are dropped here, which mutates the map.
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case incoming := <-h.incoming:
			h.handleIncoming(incoming)
		}
	}
}

// handleIncoming dispatches an action frame and replies on the same connection.
func (h *Hub) handleIncoming(incoming incomingMessage) {
	if h.onMessage == nil {
		return
	}

	var frame inboundFrame
	if err := json.Unmarshal(incoming.message, &frame); err != nil || frame.Action == "" {
		return
	}

	reply := replyFrame{Action: "response", RequestID: frame.RequestID}

	data, err := h.onMessage(frame.Action, incoming.message)
	if err != nil {
		reply.Error = err.Error()
	} else {
		reply.Data = data
	}

	encoded, err := json.Marshal(reply)
	if err != nil {
		return
	}

	select {
	case incoming.client.send <- encoded:
	default:
		// Client write queue is full; drop the reply rather than block the hub.
	}
}

// Broadcast sends a message to all connected clients. Marshal failures are
// returned; a missing listener is not an error.
func (h *Hub) Broadcast(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	h.broadcast <- data
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket handles WebSocket connection upgrade.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		c.hub.incoming <- incomingMessage{
			client:  c,
			message: message,
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
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
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Send any queued messages as separate frames
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
