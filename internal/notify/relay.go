package notify

import (
	"encoding/json"
	"log/slog"

	"github.com/MikeSquared-Agency/caption/internal/hermes"
)

// Bus is the message bus the relay rides on.
type Bus interface {
	Publish(subject string, data any) error
	Subscribe(subject string, handler func(subject string, data []byte)) error
}

// Relay publishes label events on the bus so that every instance's Hub sees them,
// not only the instance that ran the coordinator.
type Relay struct {
	bus    Bus
	hub    *Hub
	logger *slog.Logger
}

func NewRelay(bus Bus, hub *Hub, logger *slog.Logger) *Relay {
	return &Relay{bus: bus, hub: hub, logger: logger}
}

// Publish sends evt on the bus. If the bus rejects it, the local hub still gets it.
func (r *Relay) Publish(evt Event) {
	if err := r.bus.Publish(hermes.SubjectLabelUpdated, evt); err != nil {
		r.logger.Warn("label event publish failed, delivering locally only",
			"session_id", evt.SessionID,
			"error", err,
		)
		r.hub.Publish(evt)
	}
}

// Forward subscribes the local hub to label events from the bus.
func (r *Relay) Forward() error {
	return r.bus.Subscribe(hermes.SubjectLabelUpdated, r.handle)
}

func (r *Relay) handle(subject string, data []byte) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		r.logger.Error("failed to parse label event", "subject", subject, "error", err)
		return
	}
	r.hub.Publish(evt)
}
