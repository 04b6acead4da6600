package notification

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Handler serves the activity feed over HTTP and streams new events over
// websocket.
type Handler struct {
	manager *Manager

	connMu   sync.Mutex
	conns    map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
}

// NewHandler creates a handler and subscribes it to the manager's events.
func NewHandler(manager *Manager) *Handler {
	h := &Handler{
		manager: manager,
		conns:   make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	manager.Subscribe(h.broadcast)
	return h
}

// RegisterRoutes mounts the feed endpoints on the router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/notifications", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/notifications", h.handleClear).Methods(http.MethodDelete)
	router.HandleFunc("/ws/notifications", h.handleWebSocket)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	events := h.manager.Events(EventType(r.URL.Query().Get("type")))
	if events == nil {
		events = []Event{}
	}

	if err := json.NewEncoder(w).Encode(events); err != nil {
		log.Errorf("failed to encode notifications: %v", err)
	}
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	h.manager.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("failed to upgrade notification stream: %v", err)
		return
	}

	h.connMu.Lock()
	h.conns[conn] = struct{}{}
	h.connMu.Unlock()

	log.Debug("notification stream connected")

	go h.readLoop(conn)
}

// readLoop drains client messages so pings are answered, and unregisters
// the connection on close.
func (h *Handler) readLoop(conn *websocket.Conn) {
	defer func() {
		h.connMu.Lock()
		delete(h.conns, conn)
		h.connMu.Unlock()
		conn.Close()
		log.Debug("notification stream closed")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("notification stream error: %v", err)
			}
			return
		}
	}
}

func (h *Handler) broadcast(event Event) {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	for conn := range h.conns {
		if err := conn.WriteJSON(event); err != nil {
			log.Warnf("failed to push event to stream: %v", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}
