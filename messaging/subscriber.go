package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/sarthak1985/Convey/config"
	"github.com/sarthak1985/Convey/contracts"
	"github.com/sarthak1985/Convey/plugins"
	"github.com/sarthak1985/Convey/serialization"
)

// Subscriber wires topology provisioning, the plugin pipeline and the
// message processor per subscription. One subscriber instance can carry
// multiple message types, one channel each.
type Subscriber struct {
	transport   Transport
	registry    *SubscriptionRegistry
	provisioner *TopologyProvisioner
	serializer  serialization.Serializer
	publisher   Publisher
	resolver    ConventionsResolver
	provider    ContextProvider
	contexts    *CorrelationContextBuilder
	mapper      ExceptionMapper
	pipeline    *plugins.Pipeline
	cfg         config.SubscriberConfig
	logger      *slog.Logger
	closed      atomic.Bool
}

// SubscriberOption configures the Subscriber
type SubscriberOption func(*Subscriber)

// WithSubscriberLogger sets the logger
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(s *Subscriber) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSerializer sets the wire serializer
func WithSerializer(serializer serialization.Serializer) SubscriberOption {
	return func(s *Subscriber) {
		if serializer != nil {
			s.serializer = serializer
		}
	}
}

// WithPublisher sets the publisher used for mapped rejected events
func WithPublisher(publisher Publisher) SubscriberOption {
	return func(s *Subscriber) {
		s.publisher = publisher
	}
}

// WithConventionsResolver sets the topology naming resolver
func WithConventionsResolver(resolver ConventionsResolver) SubscriberOption {
	return func(s *Subscriber) {
		if resolver != nil {
			s.resolver = resolver
		}
	}
}

// WithContextProvider sets the correlation context provider
func WithContextProvider(provider ContextProvider) SubscriberOption {
	return func(s *Subscriber) {
		s.provider = provider
	}
}

// WithSubscriberExceptionMapper sets the exception-to-event mapper
func WithSubscriberExceptionMapper(mapper ExceptionMapper) SubscriberOption {
	return func(s *Subscriber) {
		if mapper != nil {
			s.mapper = mapper
		}
	}
}

// WithPipeline replaces the plugin pipeline
func WithPipeline(pipeline *plugins.Pipeline) SubscriberOption {
	return func(s *Subscriber) {
		if pipeline != nil {
			s.pipeline = pipeline
		}
	}
}

// NewSubscriber creates a subscriber over the given transport.
func NewSubscriber(transport Transport, cfg config.SubscriberConfig, options ...SubscriberOption) *Subscriber {
	cfg.Normalize()

	s := &Subscriber{
		transport:  transport,
		cfg:        cfg,
		logger:     slog.Default(),
		serializer: serialization.NewJSONSerializer(),
		resolver:   NewConventionsResolver(cfg.ServiceName, cfg.Exchange),
		mapper:     NopExceptionMapper{},
		pipeline:   plugins.NewPipeline(),
	}

	for _, opt := range options {
		opt(s)
	}

	s.contexts = NewCorrelationContextBuilder(s.provider)
	s.registry = NewSubscriptionRegistry(s.logger)
	s.provisioner = NewTopologyProvisioner(
		QueueSettings{
			Declare:    cfg.Queue.Declare,
			Durable:    cfg.Queue.Durable,
			Exclusive:  cfg.Queue.Exclusive,
			AutoDelete: cfg.Queue.AutoDelete,
		},
		QosSettings{
			PrefetchSize:  cfg.PrefetchSize,
			PrefetchCount: cfg.PrefetchCount,
			Global:        cfg.QosGlobal,
		},
		DeadLetterSettings{
			Enabled:    cfg.DeadLetter.Enabled,
			Declare:    cfg.DeadLetter.Declare,
			Durable:    cfg.DeadLetter.Durable,
			Exclusive:  cfg.DeadLetter.Exclusive,
			AutoDelete: cfg.DeadLetter.AutoDelete,
			Prefix:     cfg.DeadLetter.Prefix,
			Suffix:     cfg.DeadLetter.Suffix,
			TTLMillis:  cfg.DeadLetter.TTLMillis,
		},
		s.logger,
	)

	return s
}

// Use appends a plugin to the pipeline. Plugins added after a subscription
// was registered do not apply to it.
func (s *Subscriber) Use(plugin plugins.Plugin) *Subscriber {
	s.pipeline.Use(plugin)
	return s
}

// ActiveSubscriptions returns the number of registered subscriptions.
func (s *Subscriber) ActiveSubscriptions() int {
	return s.registry.Len()
}

// Close releases every registered channel. Further Subscribe calls fail
// with ErrSubscriberClosed.
func (s *Subscriber) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.registry.CloseAll()
	s.logger.Info("subscriber closed")
	return err
}

// Subscribe registers a handler for message type T. The topology triple is
// derived from T; subscribing the same type twice is a silent no-op
// returning the same subscriber, so calls chain fluently:
//
//	_, err := messaging.Subscribe(ctx, sub, onOrderPlaced)
//	_, err = messaging.Subscribe(ctx, sub, onOrderShipped)
//
// On a new subscription the topology is provisioned synchronously; a
// declare or bind failure propagates and nothing stays registered.
func Subscribe[T any](ctx context.Context, s *Subscriber, handler func(ctx context.Context, msg T) error) (*Subscriber, error) {
	if handler == nil {
		return s, ErrNilHandler
	}
	if s.closed.Load() {
		return s, ErrSubscriberClosed
	}

	var prototype T
	conventions := s.resolver.Resolve(prototype)
	key := conventions.ChannelKey()

	entry, isNew, err := s.registry.RegisterOrReuse(key, conventions, s.transport.OpenChannel)
	if err != nil {
		return s, fmt.Errorf("open channel for %s: %w", key, err)
	}
	if !isNew {
		return s, nil
	}

	if err := s.provisioner.Provision(entry.Channel, conventions); err != nil {
		s.registry.Discard(entry)
		return s, err
	}

	decode := func(body []byte) (interface{}, error) {
		var msg T
		if err := s.serializer.Deserialize(body, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	}

	processor := s.newProcessor()
	composed := s.pipeline.Compose(func(ctx context.Context, envelope contracts.MessageEnvelope, msg interface{}) error {
		d, ok := deliveryFromContext(ctx)
		if !ok {
			return fmt.Errorf("messaging: no delivery in context for message %s", envelope.MessageID)
		}
		cc, _ := CorrelationFromContext(ctx)
		_, err := processor.Process(ctx, d, envelope, cc, func(hctx context.Context) error {
			return handler(hctx, msg.(T))
		})
		return err
	})

	callback := s.newDeliveryCallback(ctx, conventions, composed, decode)
	if err := entry.Channel.Consume(ctx, conventions.Queue, callback); err != nil {
		s.registry.Discard(entry)
		return s, fmt.Errorf("attach consumer to %s: %w", conventions.Queue, err)
	}

	s.logger.Info("subscribed",
		"exchange", conventions.Exchange,
		"queue", conventions.Queue,
		"routingKey", conventions.RoutingKey,
	)

	return s, nil
}

// newDeliveryCallback wraps the composed pipeline with the fatal path: any
// error escaping the pipeline (deserialization, context building, a plugin
// fault) rejects the delivery without requeue and is rethrown to the
// transport layer. Failures inside the processor have already dispositioned
// the delivery and are only logged here.
func (s *Subscriber) newDeliveryCallback(ctx context.Context, conventions Conventions, composed plugins.Next, decode func([]byte) (interface{}, error)) func(Delivery) error {
	return func(raw Delivery) error {
		d := &settledDelivery{Delivery: raw}

		err := s.dispatch(ctx, d, composed, decode)
		if err != nil {
			s.logger.Error("message pipeline failed",
				"queue", conventions.Queue,
				"messageId", raw.MessageID(),
				"error", err,
			)
			if !d.settled() {
				if rejErr := d.Reject(false); rejErr != nil {
					s.logger.Error("failed to reject message",
						"messageId", raw.MessageID(),
						"error", rejErr,
					)
				}
			}
		}
		return err
	}
}

func (s *Subscriber) dispatch(ctx context.Context, d Delivery, composed plugins.Next, decode func([]byte) (interface{}, error)) error {
	msg, err := decode(d.Body())
	if err != nil {
		return fmt.Errorf("deserialize delivery %s: %w", d.MessageID(), err)
	}

	dctx, envelope, _ := s.contexts.Build(ctx, d)
	dctx = withDelivery(dctx, d)
	return composed(dctx, envelope, msg)
}

func (s *Subscriber) newProcessor() *MessageProcessor {
	return NewMessageProcessor(
		NewRetryPolicy(s.cfg.Retries, s.cfg.RetryInterval),
		WithProcessorLogger(s.logger),
		WithProcessingTimeout(s.cfg.ProcessingTimeout),
		WithRequeueFailedMessages(s.cfg.RequeueFailedMessages),
		WithExceptionMapper(s.mapper),
		WithRejectedPublisher(s.publisher),
		WithAttemptLogging(s.cfg.LoggerEnabled),
	)
}

type deliveryCtxKey struct{}

func withDelivery(ctx context.Context, d Delivery) context.Context {
	return context.WithValue(ctx, deliveryCtxKey{}, d)
}

func deliveryFromContext(ctx context.Context) (Delivery, bool) {
	d, ok := ctx.Value(deliveryCtxKey{}).(Delivery)
	return d, ok
}

// settledDelivery lets only the first disposition through. A handler that
// completes after a timeout already nacked the delivery cannot acknowledge
// it a second time.
type settledDelivery struct {
	Delivery
	done atomic.Bool
}

func (d *settledDelivery) Ack() error {
	if !d.done.CompareAndSwap(false, true) {
		return nil
	}
	return d.Delivery.Ack()
}

func (d *settledDelivery) Nack(requeue bool) error {
	if !d.done.CompareAndSwap(false, true) {
		return nil
	}
	return d.Delivery.Nack(requeue)
}

func (d *settledDelivery) Reject(requeue bool) error {
	if !d.done.CompareAndSwap(false, true) {
		return nil
	}
	return d.Delivery.Reject(requeue)
}

func (d *settledDelivery) settled() bool {
	return d.done.Load()
}
