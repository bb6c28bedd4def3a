package plugins

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sarthak1985/Convey/contracts"
)

// MetricsPlugin records processed message counts and handling latency.
type MetricsPlugin struct {
	processed *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewMetricsPlugin creates a metrics plugin registering its collectors with
// the given registerer. Pass prometheus.DefaultRegisterer for the global
// registry.
func NewMetricsPlugin(reg prometheus.Registerer) *MetricsPlugin {
	factory := promauto.With(reg)
	return &MetricsPlugin{
		processed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convey_consumer_messages_total",
			Help: "Total messages that went through the consumer pipeline",
		}, []string{"outcome"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "convey_consumer_handle_duration_seconds",
			Help:    "Time spent handling one delivery, retries included",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handle implements Plugin
func (p *MetricsPlugin) Handle(ctx context.Context, envelope contracts.MessageEnvelope, msg interface{}, next Next) error {
	start := time.Now()

	err := next(ctx, envelope, msg)
	p.duration.Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.processed.WithLabelValues(outcome).Inc()

	return err
}

// Name implements Plugin
func (p *MetricsPlugin) Name() string {
	return "MetricsPlugin"
}
