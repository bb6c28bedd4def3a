package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sarthak1985/Convey/contracts"
)

// Disposition is the terminal outcome applied to a delivery.
type Disposition int

const (
	// DispositionAcked means the delivery was positively acknowledged
	DispositionAcked Disposition = iota
	// DispositionNacked means the delivery was negatively acknowledged
	DispositionNacked
	// DispositionRejected means a rejected event was published and the
	// original delivery acknowledged
	DispositionRejected
)

// String returns a readable name for the disposition.
func (d Disposition) String() string {
	switch d {
	case DispositionAcked:
		return "acked"
	case DispositionNacked:
		return "nacked"
	case DispositionRejected:
		return "rejected-event-published"
	default:
		return "unknown"
	}
}

// MessageProcessor drives one in-flight message to a terminal disposition:
// it invokes the handler under the retry policy and optional processing
// timeout, consults the exception mapper on failure, and applies exactly one
// ack or nack to the delivery.
type MessageProcessor struct {
	policy         RetryPolicy
	timeout        time.Duration
	requeueFailed  bool
	mapper         ExceptionMapper
	publisher      Publisher
	logger         *slog.Logger
	loggingEnabled bool
}

// ProcessorOption configures the MessageProcessor
type ProcessorOption func(*MessageProcessor)

// WithProcessorLogger sets the logger
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *MessageProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProcessingTimeout races each handler invocation against a timer of the
// given duration. Zero disables the timeout.
func WithProcessingTimeout(timeout time.Duration) ProcessorOption {
	return func(p *MessageProcessor) {
		p.timeout = timeout
	}
}

// WithRequeueFailedMessages controls the requeue flag on negative
// acknowledgments.
func WithRequeueFailedMessages(requeue bool) ProcessorOption {
	return func(p *MessageProcessor) {
		p.requeueFailed = requeue
	}
}

// WithExceptionMapper sets the exception-to-event mapper
func WithExceptionMapper(mapper ExceptionMapper) ProcessorOption {
	return func(p *MessageProcessor) {
		if mapper != nil {
			p.mapper = mapper
		}
	}
}

// WithRejectedPublisher sets the publisher used for mapped rejected events
func WithRejectedPublisher(publisher Publisher) ProcessorOption {
	return func(p *MessageProcessor) {
		p.publisher = publisher
	}
}

// WithAttemptLogging enables or disables per-attempt logging
func WithAttemptLogging(enabled bool) ProcessorOption {
	return func(p *MessageProcessor) {
		p.loggingEnabled = enabled
	}
}

// NewMessageProcessor creates a processor with the given retry policy.
func NewMessageProcessor(policy RetryPolicy, options ...ProcessorOption) *MessageProcessor {
	p := &MessageProcessor{
		policy:         policy,
		mapper:         NopExceptionMapper{},
		logger:         slog.Default(),
		loggingEnabled: true,
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Process runs the handler for one delivery until a terminal disposition is
// applied. The returned error is non-nil only for abnormal conditions (a
// failed broker acknowledgment, a failed rejected-event publish, or context
// cancellation during a retry wait); handler failures themselves are
// absorbed into the disposition.
//
// Retries are strictly sequential and re-invoke only the handler, never the
// plugin chain. A timeout consumes no retry attempt: the message leaves the
// state machine immediately and broker-level redelivery, if requeued, starts
// a fresh invocation.
func (p *MessageProcessor) Process(ctx context.Context, d Delivery, envelope contracts.MessageEnvelope, cc contracts.CorrelationContext, invoke func(context.Context) error) (Disposition, error) {
	for attempt := 0; ; attempt++ {
		p.logAttempt("handling message", attempt, envelope)

		err := p.invokeHandler(ctx, invoke)

		if errors.Is(err, ErrProcessingTimeout) {
			if p.loggingEnabled {
				p.logger.Warn("processing timeout elapsed",
					"timeout", p.timeout,
					"messageId", envelope.MessageID,
					"correlationId", envelope.CorrelationID,
				)
			}
			return p.nack(d, envelope)
		}

		if err == nil {
			p.logAttempt("message handled", attempt, envelope)
			if ackErr := d.Ack(); ackErr != nil {
				return DispositionAcked, fmt.Errorf("ack message %s: %w", envelope.MessageID, ackErr)
			}
			return DispositionAcked, nil
		}

		failures := attempt + 1
		if p.loggingEnabled {
			p.logger.Error("handler failed",
				"attempt", failures,
				"messageId", envelope.MessageID,
				"correlationId", envelope.CorrelationID,
				"error", err,
			)
		}

		if event := p.mapper.Map(err, envelope); event != nil {
			return p.publishRejected(ctx, d, envelope, cc, event)
		}

		if !p.policy.ShouldRetry(failures) {
			if p.loggingEnabled {
				p.logger.Error("retries exhausted",
					"attempts", failures,
					"messageId", envelope.MessageID,
					"correlationId", envelope.CorrelationID,
					"error", err,
				)
			}
			return p.nack(d, envelope)
		}

		if waitErr := p.policy.Wait(ctx); waitErr != nil {
			disposition, nackErr := p.nack(d, envelope)
			if nackErr != nil {
				return disposition, nackErr
			}
			return disposition, waitErr
		}
	}
}

// invokeHandler races the handler against the processing timeout. On
// timeout the handler goroutine keeps running and its eventual result is
// discarded; only the first disposition applied to the delivery wins.
func (p *MessageProcessor) invokeHandler(ctx context.Context, invoke func(context.Context) error) error {
	if p.timeout <= 0 {
		return invoke(ctx)
	}

	done := make(chan error, 1)
	go func() {
		done <- invoke(ctx)
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrProcessingTimeout
	}
}

func (p *MessageProcessor) publishRejected(ctx context.Context, d Delivery, envelope contracts.MessageEnvelope, cc contracts.CorrelationContext, event contracts.Message) (Disposition, error) {
	if event.GetCorrelationID() == "" {
		event.SetCorrelationID(envelope.CorrelationID)
	}

	if p.publisher == nil {
		if p.loggingEnabled {
			p.logger.Error("no publisher configured for rejected event",
				"messageId", envelope.MessageID,
				"eventType", event.GetType(),
			)
		}
		return p.nack(d, envelope)
	}

	if pubErr := p.publisher.Publish(ctx, event, envelope.CorrelationID, cc); pubErr != nil {
		disposition, nackErr := p.nack(d, envelope)
		if nackErr != nil {
			return disposition, nackErr
		}
		return disposition, fmt.Errorf("publish rejected event for message %s: %w", envelope.MessageID, pubErr)
	}

	if p.loggingEnabled {
		p.logger.Info("rejected event published",
			"messageId", envelope.MessageID,
			"correlationId", envelope.CorrelationID,
			"eventType", event.GetType(),
		)
	}

	if ackErr := d.Ack(); ackErr != nil {
		return DispositionRejected, fmt.Errorf("ack message %s after rejected event: %w", envelope.MessageID, ackErr)
	}
	return DispositionRejected, nil
}

func (p *MessageProcessor) nack(d Delivery, envelope contracts.MessageEnvelope) (Disposition, error) {
	if err := d.Nack(p.requeueFailed); err != nil {
		return DispositionNacked, fmt.Errorf("nack message %s: %w", envelope.MessageID, err)
	}
	return DispositionNacked, nil
}

func (p *MessageProcessor) logAttempt(msg string, attempt int, envelope contracts.MessageEnvelope) {
	if !p.loggingEnabled {
		return
	}
	p.logger.Info(msg,
		"attempt", attempt+1,
		"messageId", envelope.MessageID,
		"correlationId", envelope.CorrelationID,
	)
}
