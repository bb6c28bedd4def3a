// Package rabbitmq adapts the amqp091-go client to the transport interfaces
// consumed by the messaging package: connection management with diagnostic
// observers, channel operations for topology and consumption, and the
// outward event publisher.
package rabbitmq
