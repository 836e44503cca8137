package notify

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// MediaEvent tells connected companion UIs that a new artifact landed in
// storage and the catalog should be refreshed.
type MediaEvent struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Owner    string `json:"owner"`
}

// Client represents a connected WebSocket client.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub manages all active clients and broadcasts media events.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's message processing loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("WebSocket: Client registered (%s)", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("WebSocket: Client unregistered (%s)", client.id)

		case message := <-h.broadcast:
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
		}
	}
}

// BroadcastMediaEvent queues an upload-completed notification for every
// connected client. Safe to call from any goroutine.
func (h *Hub) BroadcastMediaEvent(mediaType, filename, owner string) {
	message, err := json.Marshal(MediaEvent{
		Type:     mediaType,
		Filename: filename,
		Owner:    owner,
	})
	if err != nil {
		log.Printf("WebSocket: failed to marshal media event: %v", err)
		return
	}

	select {
	case h.broadcast <- message:
	default:
		log.Println("WebSocket: broadcast queue full, dropping media event")
	}
}

// ServeWS handles the connection lifecycle after the upgrade. Companion
// clients are listen-only; inbound frames are drained and discarded.
func (h *Hub) ServeWS(c *websocket.Conn) {
	client := &Client{
		id:   uuid.NewString(),
		conn: c,
		send: make(chan []byte, 256),
	}
	h.register <- client

	go client.writePump()
	client.readPump(h)
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket: write error: %v", err)
			return
		}
	}
}
