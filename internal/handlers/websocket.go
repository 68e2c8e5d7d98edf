// -----------------------------------------------------------------------
// WebSocketHandler - live event stream for batch job observers
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conveyor/internal/common"
	"github.com/ternarybob/conveyor/internal/interfaces"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the wire envelope for every event pushed to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler broadcasts engine events to connected websocket clients.
// High-frequency event types can be throttled per type via configuration;
// lifecycle events (started, completed, cancelled, failed) always pass.
type WebSocketHandler struct {
	logger        arbor.ILogger
	events        interfaces.EventService
	clients       map[*websocket.Conn]bool
	clientMutex   map[*websocket.Conn]*sync.Mutex
	mu            sync.RWMutex
	throttlers    map[interfaces.EventType]*rate.Limiter
	subscriptions map[interfaces.EventType]interfaces.SubscriptionID
}

// NewWebSocketHandler creates the handler and subscribes it to all engine
// event types
func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:        logger,
		events:        events,
		clients:       make(map[*websocket.Conn]bool),
		clientMutex:   make(map[*websocket.Conn]*sync.Mutex),
		throttlers:    make(map[interfaces.EventType]*rate.Limiter),
		subscriptions: make(map[interfaces.EventType]interfaces.SubscriptionID),
	}

	// Throttlers exist only for explicitly configured event types.
	// No throttler = every event is broadcast.
	if config != nil {
		for eventType, intervalStr := range config.ThrottleIntervals {
			duration, err := time.ParseDuration(intervalStr)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Failed to parse throttle interval - throttler disabled")
				continue
			}
			h.throttlers[interfaces.EventType(eventType)] = rate.NewLimiter(rate.Every(duration), 1)
			logger.Debug().
				Str("event_type", eventType).
				Str("interval", intervalStr).
				Msg("Throttler initialized")
		}
	}

	if events != nil {
		h.subscribeToEvents()
	}

	return h
}

// subscribeToEvents registers the broadcast handler for every engine event
// type, remembering subscription ids for Close
func (h *WebSocketHandler) subscribeToEvents() {
	eventTypes := []interfaces.EventType{
		interfaces.EventBatchStarted,
		interfaces.EventItemProcessed,
		interfaces.EventItemError,
		interfaces.EventBatchCompleted,
		interfaces.EventBatchCancelled,
		interfaces.EventBatchFailed,
	}

	for _, eventType := range eventTypes {
		id, err := h.events.Subscribe(eventType, h.handleEvent)
		if err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe to event")
			continue
		}
		h.subscriptions[eventType] = id
	}
}

// handleEvent is the single event-bus handler: throttle check, then broadcast
func (h *WebSocketHandler) handleEvent(ctx context.Context, event interfaces.Event) error {
	if limiter, ok := h.throttlers[event.Type]; ok {
		if !limiter.Allow() {
			return nil // Dropped by throttle, not an error
		}
	}

	h.broadcast(WSMessage{
		Type:    string(event.Type),
		Payload: event.Payload,
	})
	return nil
}

// broadcast sends a message to every connected client. Writes are serialized
// per connection - gorilla/websocket allows only one concurrent writer.
func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal websocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send message to websocket client")
			h.removeClient(conn)
		}
	}
}

// HandleWebSocket handles GET /ws/events upgrade requests
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().
		Str("remote", r.RemoteAddr).
		Int("clients", clientCount).
		Msg("WebSocket client connected")

	// Read loop exists only to detect disconnect - clients do not send
	// messages
	go func() {
		defer h.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// removeClient drops a connection from the broadcast set and closes it
func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, conn)
	delete(h.clientMutex, conn)
	clientCount := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	h.logger.Info().Int("clients", clientCount).Msg("WebSocket client disconnected")
}

// Close unsubscribes from the event bus and closes all client connections
func (h *WebSocketHandler) Close() {
	if h.events != nil {
		for eventType, id := range h.subscriptions {
			if err := h.events.Unsubscribe(eventType, id); err != nil {
				h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to unsubscribe")
			}
		}
	}

	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.clientMutex = make(map[*websocket.Conn]*sync.Mutex)
	h.mu.Unlock()
}
