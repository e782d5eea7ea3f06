package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"tableside/internal/logger"
	"tableside/internal/models"
)

// EventPublisher pushes state-transition events to interested sessions.
// Publication is fire-and-forget relative to the triggering state change:
// callers log failures and move on.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event models.Event) error
}

// Publisher handles event publishing to RabbitMQ
type Publisher struct {
	conn   *Connection
	logger *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(conn *Connection, log *logger.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: log,
	}
}

// PublishEvent publishes one event to the events exchange. Delivery is
// non-persistent: subscribers that are not connected never see it.
func (p *Publisher) PublishEvent(ctx context.Context, event models.Event) error {
	if p.conn.IsClosed() {
		if err := p.conn.Reconnect(); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Transient,
		Timestamp:    time.Now().UTC(),
		Type:         string(event.Type),
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	routingKey := event.RoutingKey()

	err = p.conn.Channel().PublishWithContext(
		ctx,
		EventsExchange,
		routingKey,
		false, // mandatory
		false, // immediate
		publishing,
	)
	if err != nil {
		p.logger.Error("event_publish_failed",
			fmt.Sprintf("Failed to publish %s event", event.Type),
			"", err, map[string]interface{}{
				"routing_key": routingKey,
				"entity_id":   event.EntityID,
			})
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("event_published",
		fmt.Sprintf("Published %s event", event.Type),
		"", map[string]interface{}{
			"routing_key": routingKey,
			"entity_id":   event.EntityID,
			"status":      event.Status,
		})

	return nil
}

// Close closes the publisher
func (p *Publisher) Close() error {
	return p.conn.Close()
}
