package convey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sarthak1985/Convey/config"
	"github.com/sarthak1985/Convey/internal/rabbitmq"
	"github.com/sarthak1985/Convey/messaging"
	"github.com/sarthak1985/Convey/plugins"
	"github.com/sarthak1985/Convey/serialization"
)

// Client is the entry point: it owns the broker connection, the subscriber
// and the rejected-event publisher, and tears them down in order.
type Client struct {
	conn        *rabbitmq.ConnectionManager
	subscriber  *messaging.Subscriber
	publisher   *rabbitmq.EventPublisher
	cfg         config.SubscriberConfig
	logger      *slog.Logger
	detachDiags func()
}

type clientOptions struct {
	logger   *slog.Logger
	cfg      *config.SubscriberConfig
	plugins  []plugins.Plugin
	mapper   messaging.ExceptionMapper
	provider messaging.ContextProvider
	metrics  prometheus.Registerer
}

// ClientOption configures the Client
type ClientOption func(*clientOptions)

// WithClientLogger sets the logger for every component.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithConfig overrides the configuration loaded from the environment.
func WithConfig(cfg config.SubscriberConfig) ClientOption {
	return func(o *clientOptions) {
		o.cfg = &cfg
	}
}

// WithPlugins appends plugins to the consumer pipeline.
func WithPlugins(p ...plugins.Plugin) ClientOption {
	return func(o *clientOptions) {
		o.plugins = append(o.plugins, p...)
	}
}

// WithExceptionMapper sets the exception-to-event mapper.
func WithExceptionMapper(mapper messaging.ExceptionMapper) ClientOption {
	return func(o *clientOptions) {
		o.mapper = mapper
	}
}

// WithContextProvider sets the correlation context provider.
func WithContextProvider(provider messaging.ContextProvider) ClientOption {
	return func(o *clientOptions) {
		o.provider = provider
	}
}

// WithMetrics registers pipeline metrics with the given registerer.
func WithMetrics(reg prometheus.Registerer) ClientOption {
	return func(o *clientOptions) {
		o.metrics = reg
	}
}

// NewClient connects to the broker and wires the consumer core.
func NewClient(ctx context.Context, url string, options ...ClientOption) (*Client, error) {
	opts := &clientOptions{
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(opts)
	}

	var cfg config.SubscriberConfig
	if opts.cfg != nil {
		cfg = *opts.cfg
		cfg.Normalize()
	} else {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	conn := rabbitmq.NewConnectionManager(url, rabbitmq.WithLogger(opts.logger))
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	resolver := messaging.NewConventionsResolver(cfg.ServiceName, cfg.Exchange)
	serializer := serialization.NewJSONSerializer()

	publisher, err := rabbitmq.NewEventPublisher(conn, resolver, serializer, opts.logger)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create event publisher: %w", err)
	}

	pipeline := plugins.NewPipeline(opts.plugins...).WithLogger(opts.logger)
	if opts.metrics != nil {
		pipeline.Use(plugins.NewMetricsPlugin(opts.metrics))
	}

	subscriberOpts := []messaging.SubscriberOption{
		messaging.WithSubscriberLogger(opts.logger),
		messaging.WithSerializer(serializer),
		messaging.WithConventionsResolver(resolver),
		messaging.WithPublisher(publisher),
		messaging.WithPipeline(pipeline),
	}
	if opts.mapper != nil {
		subscriberOpts = append(subscriberOpts, messaging.WithSubscriberExceptionMapper(opts.mapper))
	}
	if opts.provider != nil {
		subscriberOpts = append(subscriberOpts, messaging.WithContextProvider(opts.provider))
	}

	client := &Client{
		conn:       conn,
		subscriber: messaging.NewSubscriber(conn, cfg, subscriberOpts...),
		publisher:  publisher,
		cfg:        cfg,
		logger:     opts.logger,
	}

	if cfg.LogConnectionStatus {
		client.detachDiags = conn.AddObserver(&connectionLogger{logger: opts.logger})
	}

	return client, nil
}

// Subscriber returns the message subscriber.
func (c *Client) Subscriber() *messaging.Subscriber {
	return c.subscriber
}

// Publisher returns the outward event publisher.
func (c *Client) Publisher() messaging.Publisher {
	return c.publisher
}

// Config returns the effective configuration.
func (c *Client) Config() config.SubscriberConfig {
	return c.cfg
}

// Close releases every registered channel, detaches connection diagnostics
// and then closes the broker connection.
func (c *Client) Close() error {
	subErr := c.subscriber.Close()

	if c.detachDiags != nil {
		c.detachDiags()
		c.detachDiags = nil
	}

	pubErr := c.publisher.Close()
	connErr := c.conn.Close()

	return errors.Join(subErr, pubErr, connErr)
}

// connectionLogger logs connection diagnostics when LogConnectionStatus is
// enabled.
type connectionLogger struct {
	logger *slog.Logger
}

func (l *connectionLogger) OnClosed(err error) {
	if err != nil {
		l.logger.Error("broker connection closed", "error", err)
		return
	}
	l.logger.Info("broker connection closed")
}

func (l *connectionLogger) OnBlocked(reason string) {
	l.logger.Warn("broker connection blocked", "reason", reason)
}

func (l *connectionLogger) OnUnblocked() {
	l.logger.Info("broker connection unblocked")
}
