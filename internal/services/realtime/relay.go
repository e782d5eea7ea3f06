package realtime

import (
	"context"

	"tableside/internal/logger"
	"tableside/internal/messaging"
	"tableside/internal/models"
)

// Relay consumes the broker relay queue and feeds the hub. One relay
// instance serves every session connected to its process.
type Relay struct {
	consumer *messaging.Consumer
	hub      *Hub
	logger   *logger.Logger
}

// NewRelay creates a relay over an existing consumer and hub
func NewRelay(consumer *messaging.Consumer, hub *Hub, log *logger.Logger) *Relay {
	return &Relay{
		consumer: consumer,
		hub:      hub,
		logger:   log,
	}
}

// Run consumes until the context is cancelled. A malformed payload is
// dropped; the relay never requeues.
func (r *Relay) Run(ctx context.Context) error {
	return r.consumer.StartConsuming(ctx, func(_ context.Context, body []byte) error {
		var event models.Event
		if err := messaging.ParseMessage(body, &event); err != nil {
			r.logger.Error("event_parse_failed", "Failed to parse event payload", "", err, nil)
			return err
		}
		r.hub.Broadcast(event)
		return nil
	})
}
