package messaging

import (
	"context"
	"time"
)

// Transport opens channels on an established broker connection.
type Transport interface {
	// OpenChannel opens a new channel for topology setup and consumption
	OpenChannel() (Channel, error)

	// Close releases the underlying connection
	Close() error
}

// Channel is one logical broker connection subdivision. Declarations are
// idempotent broker-side and safe to repeat.
type Channel interface {
	// DeclareExchange declares an exchange of the given kind
	DeclareExchange(name, kind string, durable, autoDelete bool) error

	// DeclareQueue declares a queue with the given arguments
	DeclareQueue(name string, durable, exclusive, autoDelete bool, args map[string]interface{}) error

	// BindQueue binds a queue to an exchange with a routing key
	BindQueue(queue, exchange, routingKey string) error

	// Qos bounds the number of unacknowledged in-flight deliveries
	Qos(prefetchSize, prefetchCount int, global bool) error

	// Consume attaches a delivery callback to a queue. Callback errors have
	// already been dispositioned by the pipeline; the transport only logs them.
	Consume(ctx context.Context, queue string, onDelivery func(Delivery) error) error

	// Close releases the channel
	Close() error
}

// Delivery is one in-flight message handed to the subscription callback.
// Exactly one of Ack, Nack or Reject is applied before handling completes.
type Delivery interface {
	MessageID() string
	CorrelationID() string
	Timestamp() time.Time
	Headers() map[string]interface{}
	Body() []byte

	// Ack positively acknowledges the delivery
	Ack() error

	// Nack negatively acknowledges the delivery, optionally requeueing it
	Nack(requeue bool) error

	// Reject discards the delivery as unprocessable
	Reject(requeue bool) error
}
