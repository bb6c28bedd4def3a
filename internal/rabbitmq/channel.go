package rabbitmq

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sarthak1985/Convey/messaging"
)

// amqpChannel adapts an amqp091 channel to messaging.Channel.
type amqpChannel struct {
	ch     *amqp.Channel
	logger *slog.Logger
}

func (c *amqpChannel) DeclareExchange(name, kind string, durable, autoDelete bool) error {
	return c.ch.ExchangeDeclare(
		name,
		kind,
		durable,
		autoDelete,
		false, // internal
		false, // no-wait
		nil,
	)
}

func (c *amqpChannel) DeclareQueue(name string, durable, exclusive, autoDelete bool, args map[string]interface{}) error {
	_, err := c.ch.QueueDeclare(
		name,
		durable,
		autoDelete,
		exclusive,
		false, // no-wait
		amqp.Table(args),
	)
	return err
}

func (c *amqpChannel) BindQueue(queue, exchange, routingKey string) error {
	return c.ch.QueueBind(
		queue,
		routingKey,
		exchange,
		false, // no-wait
		nil,
	)
}

func (c *amqpChannel) Qos(prefetchSize, prefetchCount int, global bool) error {
	return c.ch.Qos(prefetchCount, prefetchSize, global)
}

func (c *amqpChannel) Consume(ctx context.Context, queue string, onDelivery func(messaging.Delivery) error) error {
	deliveries, err := c.ch.Consume(
		queue,
		"",    // consumer tag, server-generated
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	go c.pump(ctx, queue, deliveries, onDelivery)
	return nil
}

// pump feeds broker deliveries into the subscription callback. Callback
// errors have already been dispositioned by the pipeline and are only
// logged here.
func (c *amqpChannel) pump(ctx context.Context, queue string, deliveries <-chan amqp.Delivery, onDelivery func(messaging.Delivery) error) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("stopping delivery pump", "queue", queue, "reason", ctx.Err())
			return

		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed", "queue", queue)
				return
			}

			if err := onDelivery(&amqpDelivery{d: d}); err != nil {
				c.logger.Error("delivery handling failed",
					"queue", queue,
					"messageId", d.MessageId,
					"error", err,
				)
			}
		}
	}
}

func (c *amqpChannel) Close() error {
	return c.ch.Close()
}

// amqpDelivery adapts one amqp091 delivery to messaging.Delivery.
type amqpDelivery struct {
	d amqp.Delivery
}

func (a *amqpDelivery) MessageID() string {
	return a.d.MessageId
}

func (a *amqpDelivery) CorrelationID() string {
	return a.d.CorrelationId
}

func (a *amqpDelivery) Timestamp() time.Time {
	return a.d.Timestamp
}

func (a *amqpDelivery) Headers() map[string]interface{} {
	return map[string]interface{}(a.d.Headers)
}

func (a *amqpDelivery) Body() []byte {
	return a.d.Body
}

func (a *amqpDelivery) Ack() error {
	return a.d.Ack(false)
}

func (a *amqpDelivery) Nack(requeue bool) error {
	return a.d.Nack(false, requeue)
}

func (a *amqpDelivery) Reject(requeue bool) error {
	return a.d.Reject(requeue)
}
