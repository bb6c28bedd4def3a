package messaging

import (
	"log/slog"
)

// defaultDeadLetterTTL is the effective x-message-ttl when dead-lettering is
// enabled without a positive TTL: 24 hours, in milliseconds.
const defaultDeadLetterTTL = int64(86_400_000)

// QosSettings bounds the number of unacknowledged in-flight deliveries per
// channel.
type QosSettings struct {
	PrefetchSize  int
	PrefetchCount int
	Global        bool
}

// normalized clamps the prefetch count to a minimum of 1.
func (q QosSettings) normalized() QosSettings {
	if q.PrefetchCount < 1 {
		q.PrefetchCount = 1
	}
	return q
}

// QueueSettings controls declaration of the primary queue.
type QueueSettings struct {
	Declare    bool
	Durable    bool
	Exclusive  bool
	AutoDelete bool
}

// DeadLetterSettings derives the dead-letter exchange and queue names by
// wrapping the primary names with Prefix and Suffix.
type DeadLetterSettings struct {
	Enabled    bool
	Declare    bool
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	Prefix     string
	Suffix     string
	TTLMillis  int64
}

// ExchangeFor returns the dead-letter exchange name for the given exchange.
func (d DeadLetterSettings) ExchangeFor(exchange string) string {
	return d.Prefix + exchange + d.Suffix
}

// QueueFor returns the dead-letter queue name for the given queue.
func (d DeadLetterSettings) QueueFor(queue string) string {
	return d.Prefix + queue + d.Suffix
}

// EffectiveTTLMillis returns the configured TTL, or the 24-hour default when
// the configured value is not positive.
func (d DeadLetterSettings) EffectiveTTLMillis() int64 {
	if d.TTLMillis <= 0 {
		return defaultDeadLetterTTL
	}
	return d.TTLMillis
}

// TopologyProvisioner declares and binds the queue, exchange and optional
// dead-letter pair for one subscription, then applies QoS. Declarations are
// idempotent broker-side; failures are not retried locally and propagate to
// the caller of Subscribe.
type TopologyProvisioner struct {
	queue      QueueSettings
	qos        QosSettings
	deadLetter DeadLetterSettings
	logger     *slog.Logger
}

// NewTopologyProvisioner creates a provisioner with the given settings.
func NewTopologyProvisioner(queue QueueSettings, qos QosSettings, deadLetter DeadLetterSettings, logger *slog.Logger) *TopologyProvisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &TopologyProvisioner{
		queue:      queue,
		qos:        qos,
		deadLetter: deadLetter,
		logger:     logger,
	}
}

// Provision ensures the topology for the given conventions exists on the
// channel.
func (t *TopologyProvisioner) Provision(ch Channel, c Conventions) error {
	args := make(map[string]interface{})

	if t.deadLetter.Enabled {
		dlExchange := t.deadLetter.ExchangeFor(c.Exchange)
		dlQueue := t.deadLetter.QueueFor(c.Queue)

		if t.deadLetter.Declare {
			if err := ch.DeclareExchange(dlExchange, "direct", t.deadLetter.Durable, t.deadLetter.AutoDelete); err != nil {
				return &TopologyError{Component: "exchange", Name: dlExchange, Op: "declare", Err: err}
			}
			if err := ch.DeclareQueue(dlQueue, t.deadLetter.Durable, t.deadLetter.Exclusive, t.deadLetter.AutoDelete, nil); err != nil {
				return &TopologyError{Component: "queue", Name: dlQueue, Op: "declare", Err: err}
			}
			if err := ch.BindQueue(dlQueue, dlExchange, dlQueue); err != nil {
				return &TopologyError{Component: "binding", Name: dlQueue, Op: "bind", Err: err}
			}
		}

		args["x-dead-letter-exchange"] = dlExchange
		args["x-dead-letter-routing-key"] = dlQueue
		args["x-message-ttl"] = t.deadLetter.EffectiveTTLMillis()
	}

	if t.queue.Declare {
		if err := ch.DeclareQueue(c.Queue, t.queue.Durable, t.queue.Exclusive, t.queue.AutoDelete, args); err != nil {
			return &TopologyError{Component: "queue", Name: c.Queue, Op: "declare", Err: err}
		}
	}

	if err := ch.BindQueue(c.Queue, c.Exchange, c.RoutingKey); err != nil {
		return &TopologyError{Component: "binding", Name: c.Queue, Op: "bind", Err: err}
	}

	qos := t.qos.normalized()
	if err := ch.Qos(qos.PrefetchSize, qos.PrefetchCount, qos.Global); err != nil {
		return &TopologyError{Component: "queue", Name: c.Queue, Op: "set qos on", Err: err}
	}

	t.logger.Debug("topology provisioned",
		"exchange", c.Exchange,
		"queue", c.Queue,
		"routingKey", c.RoutingKey,
		"deadLetter", t.deadLetter.Enabled,
		"prefetchCount", qos.PrefetchCount,
	)

	return nil
}
