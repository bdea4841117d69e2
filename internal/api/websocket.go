package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"dealerscan/internal/eventbus"
)

// wsMessage is the wire form of a pipeline event.
type wsMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub fans pipeline events out to connected websocket clients. A
// client that falls behind is dropped rather than allowed to stall
// the broadcast loop.
type Hub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// bridge subscribes the hub to every event type the pipeline publishes
// and feeds the broadcast loop. The bus drops events for us if the
// subscription channel fills up.
func (h *Hub) bridge(bus *eventbus.Bus) {
	events := make(chan eventbus.Event, 64)
	for _, t := range eventbus.Types() {
		bus.Subscribe(t, events)
	}
	go func() {
		for ev := range events {
			msg, err := json.Marshal(wsMessage{
				Type: ev.Type,
				Payload: map[string]interface{}{
					"tenant_id": ev.TenantID,
					"timestamp": ev.Timestamp,
					"data":      ev.Data,
				},
			})
			if err != nil {
				log.Printf("[WS] failed to encode %s event: %v", ev.Type, err)
				continue
			}
			h.broadcast <- msg
		}
	}()
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, 256)}
	h.register <- c

	go c.writeLoop()
	c.readLoop(h)
}

func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readLoop discards inbound frames; the socket is broadcast only. It
// returns when the client hangs up, which unregisters it.
func (c *wsClient) readLoop(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
