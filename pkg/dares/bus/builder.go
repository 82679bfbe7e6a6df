package bus

import (
	"fmt"

	"github.com/tsarna/dares/pkg/dares/o11y"
	"go.uber.org/zap"
)

// Builder provides a fluent interface for creating Bus instances
type Builder struct {
	logger          *zap.Logger
	name            string
	metricsProvider o11y.MetricsProvider
	tracingProvider o11y.TracingProvider
}

// New creates a new Builder
func New() *Builder {
	return &Builder{}
}

// WithLogger sets the logger used to report handler failures
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithName sets a name that is attached to every log line and metric label
func (b *Builder) WithName(name string) *Builder {
	b.name = name
	return b
}

// WithMetrics sets the metrics provider for the Bus
func (b *Builder) WithMetrics(provider o11y.MetricsProvider) *Builder {
	b.metricsProvider = provider
	return b
}

// WithTracing sets the tracing provider for the Bus
func (b *Builder) WithTracing(provider o11y.TracingProvider) *Builder {
	b.tracingProvider = provider
	return b
}

// IsValid validates the builder configuration
func (b *Builder) IsValid() error {
	if len(b.name) > 64 {
		return fmt.Errorf("bus name must be at most 64 characters, got %d", len(b.name))
	}

	return nil
}

// Build creates the Bus, returning an error if the configuration is invalid
func (b *Builder) Build() (*Bus, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if b.name != "" {
		logger = logger.With(zap.String("bus", b.name))
	}

	bus := &Bus{
		logger:        logger,
		name:          b.name,
		subscriptions: make(map[string][]*subscription),
		tracing:       b.tracingProvider,
	}

	if b.metricsProvider != nil {
		bus.emitCounter = b.metricsProvider.Counter("bus_events_emitted_total")
		bus.errorCounter = b.metricsProvider.Counter("bus_handler_errors_total")
		bus.subscriptionGauge = b.metricsProvider.Gauge("bus_subscriptions")
	}

	return bus, nil
}
