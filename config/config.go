package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// DefaultDeadLetterTTL is applied when dead-lettering is enabled without a
// positive TTL: 24 hours, in milliseconds.
const DefaultDeadLetterTTL = int64(86_400_000)

// QueueConfig controls declaration of the primary queue.
type QueueConfig struct {
	Declare    bool `envconfig:"QUEUE_DECLARE" default:"true"`
	Durable    bool `envconfig:"QUEUE_DURABLE" default:"true"`
	Exclusive  bool `envconfig:"QUEUE_EXCLUSIVE" default:"false"`
	AutoDelete bool `envconfig:"QUEUE_AUTO_DELETE" default:"false"`
}

// DeadLetterConfig controls the dead-letter queue and exchange derived from
// the primary names.
type DeadLetterConfig struct {
	Enabled    bool   `envconfig:"DEAD_LETTER_ENABLED" default:"false"`
	Declare    bool   `envconfig:"DEAD_LETTER_DECLARE" default:"true"`
	Durable    bool   `envconfig:"DEAD_LETTER_DURABLE" default:"true"`
	Exclusive  bool   `envconfig:"DEAD_LETTER_EXCLUSIVE" default:"false"`
	AutoDelete bool   `envconfig:"DEAD_LETTER_AUTO_DELETE" default:"false"`
	Prefix     string `envconfig:"DEAD_LETTER_PREFIX" default:"dlx-"`
	Suffix     string `envconfig:"DEAD_LETTER_SUFFIX" default:""`
	TTLMillis  int64  `envconfig:"DEAD_LETTER_TTL" default:"86400000"`
}

// SubscriberConfig is the full configuration surface of the consumer core.
type SubscriberConfig struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"service"`
	Exchange    string `envconfig:"EXCHANGE" default:"convey"`

	Retries       int           `envconfig:"RETRIES" default:"3"`
	RetryInterval time.Duration `envconfig:"RETRY_INTERVAL" default:"2s"`

	PrefetchCount int  `envconfig:"PREFETCH_COUNT" default:"1"`
	PrefetchSize  int  `envconfig:"PREFETCH_SIZE" default:"0"`
	QosGlobal     bool `envconfig:"QOS_GLOBAL" default:"false"`

	Queue      QueueConfig
	DeadLetter DeadLetterConfig

	RequeueFailedMessages bool          `envconfig:"REQUEUE_FAILED_MESSAGES" default:"false"`
	ProcessingTimeout     time.Duration `envconfig:"PROCESSING_TIMEOUT" default:"0"`

	LoggerEnabled       bool `envconfig:"LOGGER_ENABLED" default:"true"`
	LogConnectionStatus bool `envconfig:"LOG_CONNECTION_STATUS" default:"false"`
}

// Load binds the configuration from CONVEY_-prefixed environment variables
// and normalizes it.
func Load() (SubscriberConfig, error) {
	var cfg SubscriberConfig
	if err := envconfig.Process("convey", &cfg); err != nil {
		return cfg, fmt.Errorf("config: process environment: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Default returns the configuration with all defaults applied and no
// environment lookup.
func Default() SubscriberConfig {
	cfg := SubscriberConfig{
		ServiceName:   "service",
		Exchange:      "convey",
		Retries:       3,
		RetryInterval: 2 * time.Second,
		PrefetchCount: 1,
		Queue: QueueConfig{
			Declare: true,
			Durable: true,
		},
		DeadLetter: DeadLetterConfig{
			Declare:   true,
			Durable:   true,
			Prefix:    "dlx-",
			TTLMillis: DefaultDeadLetterTTL,
		},
		LoggerEnabled: true,
	}
	cfg.Normalize()
	return cfg
}

// Normalize clamps out-of-range values to their documented defaults: negative
// retry counts become 3, a non-positive retry interval becomes 2s, prefetch
// count is at least 1 and a non-positive dead-letter TTL becomes 24 hours.
func (c *SubscriberConfig) Normalize() {
	if c.Retries < 0 {
		c.Retries = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 2 * time.Second
	}
	if c.PrefetchCount < 1 {
		c.PrefetchCount = 1
	}
	if c.PrefetchSize < 0 {
		c.PrefetchSize = 0
	}
	if c.DeadLetter.TTLMillis <= 0 {
		c.DeadLetter.TTLMillis = DefaultDeadLetterTTL
	}
}
