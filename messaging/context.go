package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/sarthak1985/Convey/contracts"
)

type envelopeCtxKey struct{}
type correlationCtxKey struct{}

// CorrelationContextBuilder turns a raw delivery into the per-message
// envelope and correlation context, attached to a context scoped to one
// delivery. Everything rooted in that context is discarded when handling
// reaches a terminal disposition.
type CorrelationContextBuilder struct {
	provider ContextProvider
}

// NewCorrelationContextBuilder creates a builder using the given provider.
func NewCorrelationContextBuilder(provider ContextProvider) *CorrelationContextBuilder {
	if provider == nil {
		provider = HeaderContextProvider{}
	}
	return &CorrelationContextBuilder{provider: provider}
}

// Build reads the delivery once into an immutable envelope, runs the context
// provider over its headers and attaches both to a derived context.
func (b *CorrelationContextBuilder) Build(ctx context.Context, d Delivery) (context.Context, contracts.MessageEnvelope, contracts.CorrelationContext) {
	envelope := contracts.MessageEnvelope{
		MessageID:     d.MessageID(),
		CorrelationID: d.CorrelationID(),
		Timestamp:     d.Timestamp().Unix(),
		Headers:       d.Headers(),
		Body:          d.Body(),
	}
	if envelope.MessageID == "" {
		envelope.MessageID = uuid.New().String()
	}

	cc := b.provider.Build(envelope.Headers)

	ctx = context.WithValue(ctx, envelopeCtxKey{}, envelope)
	ctx = context.WithValue(ctx, correlationCtxKey{}, cc)
	return ctx, envelope, cc
}

// EnvelopeFromContext returns the envelope of the delivery being handled.
func EnvelopeFromContext(ctx context.Context) (contracts.MessageEnvelope, bool) {
	envelope, ok := ctx.Value(envelopeCtxKey{}).(contracts.MessageEnvelope)
	return envelope, ok
}

// CorrelationFromContext returns the correlation context of the delivery
// being handled.
func CorrelationFromContext(ctx context.Context) (contracts.CorrelationContext, bool) {
	cc, ok := ctx.Value(correlationCtxKey{}).(contracts.CorrelationContext)
	return cc, ok
}
