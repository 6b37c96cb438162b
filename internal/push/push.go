// Package push implements the WebSocket subscriber hub from spec.md §4.10:
// a single owning goroutine fans out status/completed/error events to all
// connected clients, with no shared mutable state touched from outside its
// own message-passing loop.
package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"scribe/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Envelope is the JSON shape of every message sent to subscribers.
type Envelope struct {
	Type          string               `json:"type"`
	ID            string               `json:"id,omitempty"`
	Status        model.Status         `json:"status,omitempty"`
	Progress      int                  `json:"progress,omitempty"`
	Error         string               `json:"error,omitempty"`
	Transcription *model.Transcription `json:"transcription,omitempty"`
}

// StatusLookup fetches the current record for a subscribe request's id, so
// a newly subscribed client can be sent a snapshot instead of waiting for
// the next broadcast.
type StatusLookup func(ctx context.Context, id string) (*model.Transcription, error)

// Hub owns the set of live subscriber connections. All mutation happens on
// the single goroutine started by Run; every other method only sends on a
// channel.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	lookup     StatusLookup
}

type client struct {
	conn       *websocket.Conn
	send       chan []byte
	mu         sync.Mutex
	subscribed map[string]bool
}

// NewHub constructs an unstarted Hub. Call Run in its own goroutine. lookup
// answers a subscribe request with the record's current status; it may be
// nil, in which case subscribing only registers interest in future events.
func NewHub(lookup StatusLookup) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		lookup:     lookup,
	}
}

// Run is the hub's single owning goroutine; it never touches client state
// except in response to a message on one of its channels.
func (h *Hub) Run(done <-chan struct{}) {
	clients := make(map[*client]bool)
	for {
		select {
		case <-done:
			for c := range clients {
				close(c.send)
			}
			return
		case c := <-h.register:
			clients[c] = true
		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range clients {
				select {
				case c.send <- msg:
				default:
					slog.Warn("push subscriber slow, dropping connection")
					delete(clients, c)
					close(c.send)
				}
			}
		}
	}
}

// BroadcastStatus publishes a status transition to every subscriber.
func (h *Hub) BroadcastStatus(id string, status model.Status, progress int, errMsg string) {
	h.send(Envelope{Type: "status", ID: id, Status: status, Progress: progress, Error: errMsg})
}

// BroadcastCompleted publishes the terminal success event with the full
// record.
func (h *Hub) BroadcastCompleted(tr *model.Transcription) {
	h.send(Envelope{Type: "completed", ID: tr.ID, Transcription: tr})
}

// BroadcastError publishes the terminal failure event.
func (h *Hub) BroadcastError(id, errMsg string) {
	h.send(Envelope{Type: "error", ID: id, Error: errMsg})
}

func (h *Hub) send(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("push marshal failed", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("push broadcast buffer full, dropping message", "type", env.Type)
	}
}

// ServeWS upgrades the HTTP connection and attaches it to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 16), subscribed: map[string]bool{}}
	h.register <- c

	go c.writePump()
	c.readPump(h)
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump(h *Hub) {
	defer func() { h.unregister <- c }()

	connectedMsg, _ := json.Marshal(Envelope{Type: "connected"})
	c.send <- connectedMsg

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		}
		if err := json.Unmarshal(data, &incoming); err != nil {
			continue
		}

		switch incoming.Type {
		case "ping":
			pongMsg, _ := json.Marshal(Envelope{Type: "pong"})
			select {
			case c.send <- pongMsg:
			default:
			}
		case "subscribe":
			c.mu.Lock()
			c.subscribed[incoming.ID] = true
			c.mu.Unlock()

			if h.lookup == nil || incoming.ID == "" {
				continue
			}
			tr, err := h.lookup(context.Background(), incoming.ID)
			if err != nil {
				slog.Warn("push subscribe lookup failed", "id", incoming.ID, "error", err)
				continue
			}
			errMsg := ""
			if tr.ErrorMessage != nil {
				errMsg = *tr.ErrorMessage
			}
			snapshot, _ := json.Marshal(Envelope{Type: "status", ID: tr.ID, Status: tr.Status, Progress: tr.Progress, Error: errMsg})
			select {
			case c.send <- snapshot:
			default:
			}
		}
	}
}
