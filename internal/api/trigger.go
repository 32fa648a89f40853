package api

import (
	"log/slog"

	"github.com/MikeSquared-Agency/caption/internal/hermes"
)

// EventPublisher is satisfied by *hermes.Client.
type EventPublisher interface {
	Publish(subject string, data any) error
}

// BusTrigger forwards trigger events to the coordinators listening on NATS.
// A lost event is recovered by the backfill sweeper.
type BusTrigger struct {
	bus    EventPublisher
	logger *slog.Logger
}

func NewBusTrigger(bus EventPublisher, logger *slog.Logger) *BusTrigger {
	return &BusTrigger{bus: bus, logger: logger}
}

func (t *BusTrigger) OnMessageStored(evt hermes.MessageStoredEvent) {
	if err := t.bus.Publish(hermes.SubjectMessageStored, evt); err != nil {
		t.logger.Warn("publish message stored event failed", "session_id", evt.SessionID, "error", err)
	}
}

func (t *BusTrigger) OnSessionDeleted(evt hermes.SessionDeletedEvent) {
	if err := t.bus.Publish(hermes.SubjectSessionDeleted, evt); err != nil {
		t.logger.Warn("publish session deleted event failed", "session_id", evt.SessionID, "error", err)
	}
}
