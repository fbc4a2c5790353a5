// ABOUTME: In-memory fan-out hub for chat rooms
// ABOUTME: Delivers each published envelope to every connection subscribed to a room

package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// BotName labels messages produced by the assistant.
	BotName = "Bot"
)

// Envelope is one chat line as sent to clients.
type Envelope struct {
	Message   string    `json:"message"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub provides per-room pub/sub. Publishing never blocks: a subscriber whose
// buffer is full misses the envelope.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Envelope // room -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]map[string]chan *Envelope),
		logger:      logger.With("component", "hub"),
	}
}

// Subscribe registers for envelopes published to room. The returned channel
// is closed on Unsubscribe, on Close, or once ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, room string) (<-chan *Envelope, string) {
	subID := uuid.New().String()
	ch := make(chan *Envelope, subscriberBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := h.subscribers[room]; !ok {
		h.subscribers[room] = make(map[string]chan *Envelope)
	}
	h.subscribers[room][subID] = ch
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "room", room, "sub_id", subID)

	go func() {
		<-ctx.Done()
		h.Unsubscribe(room, subID)
	}()

	return ch, subID
}

// Publish sends env to every subscriber of room except excludeSubID.
func (h *Hub) Publish(room string, env *Envelope, excludeSubID string) {
	// Sends are non-blocking, so holding the read lock keeps channels from
	// being closed underneath us without stalling publishers.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subscribers[room] {
		if excludeSubID != "" && id == excludeSubID {
			continue
		}
		h.deliver(room, id, ch, env)
	}
}

// Send delivers env to a single subscriber of room.
func (h *Hub) Send(room, subID string, env *Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if ch, ok := h.subscribers[room][subID]; ok {
		h.deliver(room, subID, ch, env)
	}
}

func (h *Hub) deliver(room, subID string, ch chan *Envelope, env *Envelope) {
	select {
	case ch <- env:
	default:
		h.logger.Debug("dropped envelope for slow subscriber",
			"room", room,
			"sub_id", subID)
	}
}

// Subscribers returns the number of live subscriptions in room.
func (h *Hub) Subscribers(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[room])
}

// Unsubscribe removes a subscription and closes its channel. It is safe to
// call more than once.
func (h *Hub) Unsubscribe(room, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[room]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(h.subscribers, room)
	}

	h.logger.Debug("subscriber removed", "room", room, "sub_id", subID)
}

// Close closes every subscriber channel. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room, subs := range h.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(h.subscribers, room)
	}
	h.closed = true

	h.logger.Debug("hub closed")
}
