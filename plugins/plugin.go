package plugins

import (
	"context"
	"log/slog"

	"github.com/sarthak1985/Convey/contracts"
)

// Next advances the chain towards the terminal handler. A plugin that does
// not call next short-circuits the rest of the chain.
type Next func(ctx context.Context, envelope contracts.MessageEnvelope, msg interface{}) error

// Plugin wraps message handling with cross-cutting behavior. Plugins run in
// registration order around the terminal handler.
type Plugin interface {
	// Handle processes a message and calls the next stage in the chain
	Handle(ctx context.Context, envelope contracts.MessageEnvelope, msg interface{}, next Next) error

	// Name returns the plugin name for logging and debugging
	Name() string
}

// PluginFunc is a function adapter for Plugin
type PluginFunc struct {
	name string
	fn   func(ctx context.Context, envelope contracts.MessageEnvelope, msg interface{}, next Next) error
}

// NewPluginFunc creates a new function-based plugin
func NewPluginFunc(name string, fn func(ctx context.Context, envelope contracts.MessageEnvelope, msg interface{}, next Next) error) *PluginFunc {
	return &PluginFunc{name: name, fn: fn}
}

// Handle implements Plugin
func (p *PluginFunc) Handle(ctx context.Context, envelope contracts.MessageEnvelope, msg interface{}, next Next) error {
	return p.fn(ctx, envelope, msg, next)
}

// Name implements Plugin
func (p *PluginFunc) Name() string {
	return p.name
}

// Pipeline holds an ordered chain of plugins. The chain is composed once per
// subscription, not per message.
type Pipeline struct {
	plugins []Plugin
	logger  *slog.Logger
}

// NewPipeline creates a pipeline with the given plugins.
func NewPipeline(plugins ...Plugin) *Pipeline {
	return &Pipeline{
		plugins: plugins,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger used for pipeline diagnostics.
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Use appends a plugin to the chain.
func (p *Pipeline) Use(plugin Plugin) *Pipeline {
	p.plugins = append(p.plugins, plugin)
	return p
}

// Len returns the number of registered plugins.
func (p *Pipeline) Len() int {
	return len(p.plugins)
}

// Compose builds the continuation chain around the terminal handler. The
// result is reusable across deliveries.
func (p *Pipeline) Compose(terminal Next) Next {
	chain := terminal
	for i := len(p.plugins) - 1; i >= 0; i-- {
		plugin := p.plugins[i]
		inner := chain
		chain = func(ctx context.Context, envelope contracts.MessageEnvelope, msg interface{}) error {
			return plugin.Handle(ctx, envelope, msg, inner)
		}
	}
	return chain
}

// Execute composes the chain and runs it for a single message. Prefer
// Compose when the chain is invoked repeatedly.
func (p *Pipeline) Execute(ctx context.Context, envelope contracts.MessageEnvelope, msg interface{}, terminal Next) error {
	return p.Compose(terminal)(ctx, envelope, msg)
}
