package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// event is the wire envelope pushed to connected pages.
type event struct {
	Type      string   `json:"type"` // "message", "status", "recording"
	Message   *Message `json:"message,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Status    string   `json:"status,omitempty"`
	Recording bool     `json:"recording,omitempty"`
}

// dismissRequest is the only message a page sends back: an explicit dismissal
// of a message by id. Auto-dismiss is client-side using DismissAfter.
type dismissRequest struct {
	Type      string `json:"type"` // "dismiss"
	MessageID string `json:"message_id"`
}

// Hub is a Notifier that broadcasts notification events to every connected
// browser page over WebSocket. All methods are safe for concurrent use; a
// slow or dead client is dropped rather than blocking the core.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}

	// onDismiss, when set, observes explicit message dismissals.
	onDismiss func(messageID string)
}

type client struct {
	send chan []byte
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// OnDismiss registers a callback invoked when a page dismisses a message.
func (h *Hub) OnDismiss(fn func(messageID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDismiss = fn
}

// Message broadcasts a transient global message.
func (h *Hub) Message(msg Message) {
	h.broadcast(event{Type: "message", Message: &msg})
}

// Status broadcasts a per-widget status line.
func (h *Hub) Status(sessionID, text string) {
	h.broadcast(event{Type: "status", SessionID: sessionID, Status: text})
}

// RecordingChanged broadcasts a recording state change for one widget.
func (h *Hub) RecordingChanged(sessionID string, recording bool) {
	h.broadcast(event{Type: "recording", SessionID: sessionID, Recording: recording})
}

var _ Notifier = (*Hub)(nil)

// ClientCount returns the number of connected pages.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(ev event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("notify: marshal event", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client cannot keep up; drop it.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams notification
// events to the page until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("notify: websocket accept", "err", err)
		return
	}

	c := &client{send: make(chan []byte, 32)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := r.Context()
	go h.readDismissals(ctx, conn)

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readDismissals consumes client messages, honouring dismiss requests.
func (h *Hub) readDismissals(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req dismissRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Type != "dismiss" {
			continue
		}
		h.mu.Lock()
		fn := h.onDismiss
		h.mu.Unlock()
		if fn != nil {
			fn(req.MessageID)
		}
	}
}
