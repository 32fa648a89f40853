package notify

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultBuffer is the per-observer channel capacity.
const DefaultBuffer = 16

// Event announces that a session's label was written and verified.
// Delivery is best-effort: an event may be dropped and is never retried.
type Event struct {
	SessionID string    `json:"session_id"`
	OwnerID   string    `json:"owner_id"`
	NewLabel  string    `json:"new_label"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Hub fans events out to the observers connected to this process, scoped by owner.
type Hub struct {
	buffer int
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// Subscription receives the events for one owner until Close is called.
type Subscription struct {
	C <-chan Event

	ch    chan Event
	owner string
	hub   *Hub
	once  sync.Once
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		buffer: buffer,
		logger: logger,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

func (h *Hub) Subscribe(ownerID string) *Subscription {
	ch := make(chan Event, h.buffer)
	s := &Subscription{C: ch, ch: ch, owner: ownerID, hub: h}

	h.mu.Lock()
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[*Subscription]struct{})
	}
	h.subs[ownerID][s] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("observer subscribed", "owner_id", ownerID)
	return s
}

// Close unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		delete(h.subs[s.owner], s)
		if len(h.subs[s.owner]) == 0 {
			delete(h.subs, s.owner)
		}
		close(s.ch)
		h.mu.Unlock()
		h.logger.Debug("observer unsubscribed", "owner_id", s.owner)
	})
}

// Publish delivers evt to every observer of evt.OwnerID without blocking.
// With no observer the event is dropped; an observer whose buffer is full misses it.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	observers := h.subs[evt.OwnerID]
	if len(observers) == 0 {
		h.logger.Debug("no observers, dropping label event",
			"session_id", evt.SessionID,
			"owner_id", evt.OwnerID,
		)
		return
	}
	for s := range observers {
		select {
		case s.ch <- evt:
		default:
			h.logger.Warn("observer buffer full, dropping label event",
				"session_id", evt.SessionID,
				"owner_id", evt.OwnerID,
			)
		}
	}
}

// Observers returns the number of live subscriptions for ownerID.
func (h *Hub) Observers(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[ownerID])
}
