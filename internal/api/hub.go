package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ecl-project/ecl/internal/node"
	"github.com/ecl-project/ecl/pkg/log"
)

// Hub fans node events out to websocket subscribers. It satisfies the node's
// event sink, so every submission, verdict, and block reaches connected
// clients as a JSON event.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
	logger  *log.Logger
}

// NewHub creates an empty event hub
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]chan []byte),
		logger:  logger.WithComponent("ws"),
	}
}

// PublishEvent encodes an event and queues it to every subscriber. Slow
// subscribers drop events rather than block the node.
func (h *Hub) PublishEvent(event node.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("failed to encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		select {
		case send <- data:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				"remote_addr", conn.RemoteAddr().String())
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWS upgrades a request and streams events until the client goes away
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	send := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()

	h.logger.Info("subscriber connected", "remote_addr", conn.RemoteAddr().String())

	// Reader: discard inbound frames, detect disconnect
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.detach(conn)
				return
			}
		}
	}()

	for data := range send {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.detach(conn)
			return
		}
	}
}

func (h *Hub) detach(conn *websocket.Conn) {
	h.mu.Lock()
	send, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(send)
	}
	h.mu.Unlock()

	if ok {
		conn.Close()
		h.logger.Info("subscriber disconnected", "remote_addr", conn.RemoteAddr().String())
	}
}

// SubscriberCount returns the number of connected websocket clients
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
