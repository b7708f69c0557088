package feed

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/foremanhq/foreman/internal/common/logger"
	"github.com/foremanhq/foreman/internal/events/bus"
)

// Snapshot is the payload of the init event sent to every new subscriber.
type Snapshot struct {
	Agents any `json:"agents"`
	Tasks  any `json:"tasks"`
}

// SnapshotFunc produces the current system snapshot for init events.
type SnapshotFunc func() *Snapshot

// Hub owns the subscriber set. Events are serialized once and fanned out;
// a subscriber whose buffer is full is dropped rather than allowed to stall
// producers.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *LiveEvent

	snapshot SnapshotFunc
	bus      bus.EventBus
	log      *logger.Logger

	mu sync.RWMutex
}

// NewHub creates a hub. The bus is optional; when present every broadcast is
// mirrored onto task.* subjects for external consumers.
func NewHub(snapshot SnapshotFunc, eventBus bus.EventBus, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *LiveEvent, 256),
		snapshot:   snapshot,
		bus:        eventBus,
		log:        log.WithFields(zap.String("component", "live_feed")),
	}
}

// Run processes registrations and broadcasts until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("live feed started")
	defer h.log.Info("live feed stopped")

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("subscriber joined", zap.String("client_id", client.ID))

			if h.snapshot != nil {
				if data, err := json.Marshal(NewLiveEvent(EventInit, h.snapshot())); err == nil {
					client.enqueue(data)
				}
			}

		case client := <-h.unregister:
			h.dropClient(client)
			h.log.Debug("subscriber left", zap.String("client_id", client.ID))

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.log.Error("failed to marshal event", zap.Error(err))
				continue
			}

			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			for _, client := range clients {
				if !client.enqueue(data) {
					// Buffer full: the subscriber is too slow, drop it.
					h.dropClient(client)
					h.log.Warn("dropped slow subscriber", zap.String("client_id", client.ID))
				}
			}

			h.publishToBus(ctx, event)
		}
	}
}

// Broadcast queues a lifecycle event for delivery to all subscribers.
// It never blocks the caller; under extreme backlog the event is dropped.
func (h *Hub) Broadcast(eventType EventType, data any) {
	event := NewLiveEvent(eventType, data)
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("broadcast backlog full, dropping event", zap.String("type", string(eventType)))
	}
}

// Register adds a subscriber; it immediately receives the init snapshot.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) dropClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) publishToBus(ctx context.Context, event *LiveEvent) {
	if h.bus == nil {
		return
	}
	payload, ok := event.Data.(map[string]any)
	if !ok {
		payload = map[string]any{"data": event.Data}
	}
	subject := "task." + string(event.Type)
	if err := h.bus.Publish(ctx, subject, bus.NewEvent(string(event.Type), "foreman", payload)); err != nil {
		h.log.Debug("bus publish failed", zap.Error(err))
	}
}
