package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"educheck/internal/logger"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Message types pushed to operator screens.
const (
	TypeStatus = "status"
	TypeFrame  = "frame"
)

// Envelope is one message on the operator channel.
type Envelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Image string      `json:"image,omitempty"` // base64 JPEG for frame messages
}

// HubService fans status updates and preview frames out to connected viewers.
// Broadcasting never blocks the caller: when the queue is full the message is
// dropped.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger

	lastStatus []byte // replayed to new viewers
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 32),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			last := h.lastStatus
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", h.GetClientCount())
			if last != nil {
				h.send(client, last)
			}

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", h.GetClientCount())

		case message := <-h.broadcast:
			h.mutex.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mutex.RUnlock()

			for _, client := range clients {
				h.send(client, message)
			}
		}
	}
}

func (h *HubService) send(client *websocket.Conn, message []byte) {
	client.SetWriteDeadline(time.Now().Add(writeWait))
	if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
		h.logger.Error("Error sending message: %v", err)
		h.mutex.Lock()
		delete(h.clients, client)
		h.mutex.Unlock()
		client.Close()
	}
}

// Register adds a viewer. It reports false once the hub has stopped.
func (h *HubService) Register(client *websocket.Conn) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a raw message for every viewer. It reports false when the
// queue is full or the hub has stopped.
func (h *HubService) Broadcast(message []byte) bool {
	if h.stopped() {
		return false
	}
	select {
	case h.broadcast <- message:
		return true
	default:
		return false
	}
}

// PublishStatus broadcasts a status update and remembers it for new viewers.
func (h *HubService) PublishStatus(status interface{}) {
	msg, err := json.Marshal(Envelope{Type: TypeStatus, Data: status})
	if err != nil {
		h.logger.Error("Failed to encode status: %v", err)
		return
	}

	h.mutex.Lock()
	h.lastStatus = msg
	h.mutex.Unlock()

	if !h.Broadcast(msg) && !h.stopped() {
		h.logger.Warning("⚠️  Viewer queue full - status update dropped")
	}
}

func (h *HubService) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// PublishFrame broadcasts a base64 encoded preview frame. Frames are the
// first thing dropped under load.
func (h *HubService) PublishFrame(encoded string) bool {
	if len(h.broadcast) > cap(h.broadcast)/2 {
		return false
	}
	msg, err := json.Marshal(Envelope{Type: TypeFrame, Image: encoded})
	if err != nil {
		return false
	}
	return h.Broadcast(msg)
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
