package contracts

import (
	"time"

	"github.com/google/uuid"
)

// BaseMessage provides common fields for all message types
type BaseMessage struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// NewBaseMessage creates a new base message with generated ID and current timestamp
func NewBaseMessage(messageType string) BaseMessage {
	return BaseMessage{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      messageType,
	}
}

// GetID returns the message ID
func (m BaseMessage) GetID() string {
	return m.ID
}

// GetType returns the message type
func (m BaseMessage) GetType() string {
	return m.Type
}

// GetTimestamp returns the message timestamp
func (m BaseMessage) GetTimestamp() time.Time {
	return m.Timestamp
}

// GetCorrelationID returns the correlation ID
func (m BaseMessage) GetCorrelationID() string {
	return m.CorrelationID
}

// SetCorrelationID sets the correlation ID
func (m *BaseMessage) SetCorrelationID(correlationID string) {
	m.CorrelationID = correlationID
}

// BaseEvent provides common fields for outward events
type BaseEvent struct {
	BaseMessage
	Source string `json:"source,omitempty"`
}

// GetSource returns the service the event originated from
func (e BaseEvent) GetSource() string {
	return e.Source
}

// NewBaseEvent creates a new event with generated ID and current timestamp
func NewBaseEvent(messageType string) BaseEvent {
	return BaseEvent{
		BaseMessage: NewBaseMessage(messageType),
	}
}
