package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nidhogg/milgram/internal/message"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is a single frame pushed to websocket watchers.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub fans world events out to connected websocket clients. It
// observes the environment and the clock, so every delivery and tick
// reaches watchers as they happen.
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		clients: make(map[*websocket.Conn]bool),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go h.pingLoop()
	return h
}

// HandleWS upgrades the request and registers the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Debug("websocket client connected", zap.Int("clients", count))

	go h.readPump(conn)
}

// readPump drains inbound frames until the client goes away. Watchers
// are read-only; anything they send is discarded.
func (h *Hub) readPump(conn *websocket.Conn) {
	defer func() {
		h.clientsMu.Lock()
		delete(h.clients, conn)
		h.clientsMu.Unlock()
		conn.Close()
		h.logger.Debug("websocket client disconnected")
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// OnMessage implements world.Observer.
func (h *Hub) OnMessage(msg *message.Message, delivered bool) {
	h.broadcast(Event{
		Type: "message",
		Data: map[string]interface{}{
			"message":   msg,
			"delivered": delivered,
		},
		Timestamp: time.Now().UTC(),
	})
}

// OnTick implements world.ClockListener.
func (h *Hub) OnTick(worldTime time.Time) {
	h.broadcast(Event{
		Type: "tick",
		Data: map[string]interface{}{
			"world_time": worldTime,
		},
		Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) broadcast(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Warn("event marshal failed", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
		}
	}
}

func (h *Hub) pingLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.clientsMu.RLock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				conn.WriteMessage(websocket.PingMessage, nil)
			}
			h.clientsMu.RUnlock()
		}
	}
}

// Clients reports how many watchers are connected.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close stops the ping loop and disconnects all clients.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
}
