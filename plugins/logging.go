package plugins

import (
	"context"
	"log/slog"
	"time"

	"github.com/sarthak1985/Convey/contracts"
)

// LoggingPlugin logs message processing with timing information
type LoggingPlugin struct {
	logger *slog.Logger
}

// NewLoggingPlugin creates a new logging plugin
func NewLoggingPlugin(logger *slog.Logger) *LoggingPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPlugin{logger: logger}
}

// Handle implements Plugin
func (p *LoggingPlugin) Handle(ctx context.Context, envelope contracts.MessageEnvelope, msg interface{}, next Next) error {
	start := time.Now()

	p.logger.Info("processing message",
		"messageId", envelope.MessageID,
		"correlationId", envelope.CorrelationID,
	)

	err := next(ctx, envelope, msg)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("message processing failed",
			"messageId", envelope.MessageID,
			"correlationId", envelope.CorrelationID,
			"duration", duration,
			"error", err,
		)
	} else {
		p.logger.Info("message processed",
			"messageId", envelope.MessageID,
			"correlationId", envelope.CorrelationID,
			"duration", duration,
		)
	}

	return err
}

// Name implements Plugin
func (p *LoggingPlugin) Name() string {
	return "LoggingPlugin"
}
