package convey

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/sarthak1985/Convey/config"
	"github.com/sarthak1985/Convey/contracts"
	"github.com/sarthak1985/Convey/messaging"
	"github.com/sarthak1985/Convey/plugins"
)

func TestClientOptionsApply(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	cfg := config.Default()
	cfg.ServiceName = "billing"

	mapper := messaging.ExceptionMapperFunc(func(err error, envelope contracts.MessageEnvelope) contracts.Message {
		return nil
	})
	registry := prometheus.NewRegistry()

	opts := &clientOptions{logger: slog.Default()}
	for _, opt := range []ClientOption{
		WithClientLogger(logger),
		WithConfig(cfg),
		WithPlugins(plugins.NewLoggingPlugin(logger)),
		WithExceptionMapper(mapper),
		WithContextProvider(messaging.HeaderContextProvider{}),
		WithMetrics(registry),
	} {
		opt(opts)
	}

	assert.Same(t, logger, opts.logger)
	assert.Equal(t, "billing", opts.cfg.ServiceName)
	assert.Len(t, opts.plugins, 1)
	assert.NotNil(t, opts.mapper)
	assert.NotNil(t, opts.provider)
	assert.Same(t, prometheus.Registerer(registry), opts.metrics)
}

func TestConnectionLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	l := &connectionLogger{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	l.OnClosed(errors.New("connection reset"))
	l.OnClosed(nil)
	l.OnBlocked("memory alarm")
	l.OnUnblocked()

	out := buf.String()
	assert.Contains(t, out, "broker connection closed")
	assert.Contains(t, out, "connection reset")
	assert.Contains(t, out, "broker connection blocked")
	assert.Contains(t, out, "memory alarm")
	assert.Contains(t, out, "broker connection unblocked")
	assert.True(t, strings.Contains(out, "level=WARN"))
}
