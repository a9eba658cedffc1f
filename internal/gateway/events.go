package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one pipeline event pushed to connected WebSocket clients.
type Event struct {
	Event  string                 `json:"event"`
	Time   time.Time              `json:"time"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// EventHub fans pipeline events out to WebSocket subscribers. Slow clients
// get dropped rather than backing up the pipeline.
type EventHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan Event
}

func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*websocket.Conn]chan Event)}
}

// Publish delivers an event to all subscribers without blocking.
func (h *EventHub) Publish(event string, fields map[string]interface{}) {
	e := Event{Event: event, Time: time.Now().UTC(), Fields: fields}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- e:
		default:
			slog.Warn("event subscriber too slow, disconnecting")
			close(ch)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

func (h *EventHub) subscribe(conn *websocket.Conn) chan Event {
	ch := make(chan Event, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *EventHub) unsubscribe(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

// run pumps events to a single client until the channel closes or a write
// fails.
func (h *EventHub) run(conn *websocket.Conn, ch chan Event) {
	for e := range ch {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.unsubscribe(conn)
			conn.Close()
			return
		}
	}
}
