package messaging

import (
	"context"

	"github.com/sarthak1985/Convey/contracts"
)

// Publisher publishes outward messages, independently of the consumer core.
// The correlation id and context of the delivery being substituted are
// carried onto the published message.
type Publisher interface {
	Publish(ctx context.Context, event contracts.Message, correlationID string, cc contracts.CorrelationContext) error
}

// ContextProvider builds the correlation context from raw delivery headers.
type ContextProvider interface {
	Build(headers map[string]interface{}) contracts.CorrelationContext
}

// HeaderContextProvider is the default provider: it lifts every string
// header into the correlation context unchanged.
type HeaderContextProvider struct{}

// Build implements ContextProvider
func (HeaderContextProvider) Build(headers map[string]interface{}) contracts.CorrelationContext {
	values := make(map[string]string, len(headers))
	for k, v := range headers {
		if s, ok := v.(string); ok {
			values[k] = s
		}
	}
	return contracts.NewCorrelationContext(values)
}

// ExceptionMapper maps a handling error to an outward event. A non-nil
// result is published instead of the original message, which is then
// acknowledged; a nil result leaves the error to the retry policy.
type ExceptionMapper interface {
	Map(err error, envelope contracts.MessageEnvelope) contracts.Message
}

// NopExceptionMapper is the default mapper: it never maps, so every failure
// goes through the retry policy.
type NopExceptionMapper struct{}

// Map implements ExceptionMapper
func (NopExceptionMapper) Map(err error, envelope contracts.MessageEnvelope) contracts.Message {
	return nil
}

// ExceptionMapperFunc is a function adapter for ExceptionMapper
type ExceptionMapperFunc func(err error, envelope contracts.MessageEnvelope) contracts.Message

// Map implements ExceptionMapper
func (f ExceptionMapperFunc) Map(err error, envelope contracts.MessageEnvelope) contracts.Message {
	return f(err, envelope)
}
