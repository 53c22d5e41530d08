package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const writeWait = time.Second

// StateHandler broadcasts runtime snapshots via WebSocket.
type StateHandler struct {
	runtime  Runtime
	interval time.Duration
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStateHandler creates a StateHandler that pushes a snapshot to every
// client each interval.
func NewStateHandler(rt Runtime, interval time.Duration) *StateHandler {
	h := &StateHandler{
		runtime:  rt,
		interval: interval,
		clients:  make(map[*websocket.Conn]*sync.Mutex),
		stopCh:   make(chan struct{}),
	}
	go h.broadcast()
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	wmu := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = wmu
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// New clients get the current state without waiting a full interval.
	if msg, err := json.Marshal(h.runtime.Snapshot()); err == nil {
		wmu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.TextMessage, msg)
		wmu.Unlock()
	}

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *StateHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops broadcasting. Connected clients stay open until they hang up.
func (h *StateHandler) Close() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// broadcast sends snapshots to all connected clients.
func (h *StateHandler) broadcast() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
		}

		if h.Clients() == 0 {
			continue
		}

		msg, err := json.Marshal(h.runtime.Snapshot())
		if err != nil {
			log.Printf("snapshot encode error: %v", err)
			continue
		}

		h.mu.RLock()
		for conn, wmu := range h.clients {
			wmu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.TextMessage, msg)
			wmu.Unlock()
		}
		h.mu.RUnlock()
	}
}
