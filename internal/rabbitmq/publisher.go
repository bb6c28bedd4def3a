package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sarthak1985/Convey/contracts"
	"github.com/sarthak1985/Convey/messaging"
	"github.com/sarthak1985/Convey/serialization"
)

// EventPublisher publishes outward messages on a dedicated channel. It
// implements messaging.Publisher and is used by the processor to publish
// rejected events in place of failed deliveries.
type EventPublisher struct {
	ch         *amqp.Channel
	resolver   messaging.ConventionsResolver
	serializer serialization.Serializer
	logger     *slog.Logger
}

// NewEventPublisher opens a publishing channel on the managed connection.
func NewEventPublisher(cm *ConnectionManager, resolver messaging.ConventionsResolver, serializer serialization.Serializer, logger *slog.Logger) (*EventPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ch, err := cm.rawChannel()
	if err != nil {
		return nil, fmt.Errorf("open publishing channel: %w", err)
	}

	return &EventPublisher{
		ch:         ch,
		resolver:   resolver,
		serializer: serializer,
		logger:     logger,
	}, nil
}

// Publish implements messaging.Publisher
func (p *EventPublisher) Publish(ctx context.Context, event contracts.Message, correlationID string, cc contracts.CorrelationContext) error {
	conventions := p.resolver.Resolve(event)

	body, err := p.serializer.Serialize(event)
	if err != nil {
		return err
	}

	contentType := "application/octet-stream"
	if ct, ok := p.serializer.(interface{ ContentType() string }); ok {
		contentType = ct.ContentType()
	}

	err = p.ch.PublishWithContext(ctx,
		conventions.Exchange,
		conventions.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   contentType,
			MessageId:     event.GetID(),
			CorrelationId: correlationID,
			Type:          event.GetType(),
			Timestamp:     event.GetTimestamp(),
			DeliveryMode:  amqp.Persistent,
			Headers:       amqp.Table(cc.AsHeaders()),
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s to %s/%s: %w", event.GetType(), conventions.Exchange, conventions.RoutingKey, err)
	}

	p.logger.Debug("event published",
		"messageId", event.GetID(),
		"correlationId", correlationID,
		"exchange", conventions.Exchange,
		"routingKey", conventions.RoutingKey,
	)

	return nil
}

// Close releases the publishing channel.
func (p *EventPublisher) Close() error {
	return p.ch.Close()
}
