package contracts

import (
	"time"
)

// Message is the base interface for everything that travels through the bus.
type Message interface {
	GetID() string
	GetType() string
	GetTimestamp() time.Time
	GetCorrelationID() string
	SetCorrelationID(correlationID string)
}

// Event represents something that has happened and is published outward.
type Event interface {
	Message
	GetSource() string
}
