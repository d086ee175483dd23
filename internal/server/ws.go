package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ayusman/bagwatch/internal/engine"
	"github.com/ayusman/bagwatch/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local dashboard only
	},
}

// EventsHandler pushes engine lifecycle events to WebSocket clients.
type EventsHandler struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan engine.Event
}

// NewEventsHandler creates an events handler with no clients.
func NewEventsHandler() *EventsHandler {
	return &EventsHandler{
		clients: make(map[*websocket.Conn]chan engine.Event),
	}
}

// Publish fans an event out to every connected client. It runs on the
// engine's state loop, so a slow client drops events instead of blocking.
func (h *EventsHandler) Publish(ev engine.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log := logging.With("server")
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := make(chan engine.Event, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Reader goroutine notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev := <-ch:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
