package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/sso312/QueryLens-sub002/internal/model"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MsgTrailEntry  MessageType = "trail_entry"
	MsgRequestDone MessageType = "request_done"
)

// Message is the WebSocket envelope format
type Message struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Connection is one subscriber watching a request's trail.
type Connection struct {
	RequestID string
	Send      chan []byte
}

// NewConnection creates a subscriber with a buffered send queue.
func NewConnection(requestID string) *Connection {
	return &Connection{RequestID: requestID, Send: make(chan []byte, 256)}
}

type publication struct {
	requestID string
	data      []byte
	done      bool
}

// Hub fans trail entries out to the subscribers of each request. It
// implements service.TrailPublisher.
type Hub struct {
	subs map[string]map[*Connection]bool

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan publication

	logger *zap.Logger
}

// NewHub creates a hub and starts its loop.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		subs:       make(map[string]map[*Connection]bool),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan publication, 256),
		logger:     logger.Named("ws"),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.subs[conn.RequestID] == nil {
				h.subs[conn.RequestID] = make(map[*Connection]bool)
			}
			h.subs[conn.RequestID][conn] = true
			h.mu.Unlock()
			h.logger.Debug("Subscriber connected", zap.String("request_id", conn.RequestID))

		case conn := <-h.unregister:
			h.mu.Lock()
			h.remove(conn)
			h.mu.Unlock()

		case pub := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.subs[pub.requestID] {
				select {
				case conn.Send <- pub.data:
				default:
					// Drop message if buffer full
				}
				if pub.done {
					h.remove(conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove closes conn once. Caller holds mu.
func (h *Hub) remove(conn *Connection) {
	conns, ok := h.subs[conn.RequestID]
	if !ok || !conns[conn] {
		return
	}
	delete(conns, conn)
	close(conn.Send)
	if len(conns) == 0 {
		delete(h.subs, conn.RequestID)
	}
}

// Register adds a subscriber
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a subscriber
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Subscribers reports how many connections watch requestID.
func (h *Hub) Subscribers(requestID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[requestID])
}

// PublishTrail sends one trail entry to the request's subscribers. It never
// blocks the pipeline; when the queue is full the entry is dropped.
func (h *Hub) PublishTrail(requestID string, entry model.AttemptEntry) {
	payload, _ := json.Marshal(entry)
	h.publish(requestID, MsgTrailEntry, payload, false)
}

// CloseRequest tells subscribers the request finished and disconnects them.
func (h *Hub) CloseRequest(requestID string) {
	h.publish(requestID, MsgRequestDone, nil, true)
}

func (h *Hub) publish(requestID string, msgType MessageType, payload json.RawMessage, done bool) {
	data, _ := json.Marshal(&Message{Type: msgType, RequestID: requestID, Payload: payload})
	select {
	case h.broadcast <- publication{requestID: requestID, data: data, done: done}:
	default:
		h.logger.Warn("Dropped trail message", zap.String("request_id", requestID), zap.String("type", string(msgType)))
	}
}
