// Package trace is a passive execution tracer: it broadcasts every VM
// instruction dispatch (spec.md §4.6's Machine.Hook) to connected
// WebSocket observers, tagged by a per-instance session id. Grounded on
// sentra-language-sentra/internal/network's websocket.go/websocket_server.go
// connection-registry pattern, simplified to one-way broadcast since a
// trace stream has no client-to-VM back-channel.
package trace

import (
	"encoding/json"
	"net/http"
	"sync"

	"cx/internal/bytecode"
	"cx/internal/vm"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event is one dispatched-instruction record, as sent to every observer.
type Event struct {
	Session uuid.UUID `json:"session"`
	IP      int       `json:"ip"`
	Op      string    `json:"op"`
	SP      int       `json:"sp"`
}

// Hub fans out Events to every currently-connected observer.
type Hub struct {
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	watchers map[uuid.UUID]*websocket.Conn
}

// NewHub constructs an empty Hub. The upgrader accepts any origin, matching
// the teacher's WebSocketServer default (spec.md's tracer is a debugging
// aid, not a security boundary).
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		watchers: make(map[uuid.UUID]*websocket.Conn),
	}
}

// Serve upgrades r into a watcher connection and registers it under a
// fresh session id, which it returns so the caller can later Remove it.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return uuid.UUID{}, err
	}
	id := uuid.New()
	h.mu.Lock()
	h.watchers[id] = conn
	h.mu.Unlock()
	return id, nil
}

// Remove drops a watcher, closing its connection.
func (h *Hub) Remove(id uuid.UUID) {
	h.mu.Lock()
	conn, ok := h.watchers[id]
	if ok {
		delete(h.watchers, id)
	}
	h.mu.Unlock()
	if ok {
		conn.Close()
	}
}

// Hook returns a vm.HookFunc that broadcasts every dispatched instruction
// of the machine identified by session to all watchers. Pass it as
// Machine.Hook to trace that instance; leaving Hook nil (the default)
// costs nothing.
func (h *Hub) Hook(session uuid.UUID) vm.HookFunc {
	return func(ip int, op bytecode.Opcode, sp int) {
		h.broadcast(Event{Session: session, IP: ip, Op: op.String(), SP: sp})
	}
}

func (h *Hub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, conn := range h.watchers {
		if werr := conn.WriteMessage(websocket.TextMessage, data); werr != nil {
			go h.Remove(id)
		}
	}
}
