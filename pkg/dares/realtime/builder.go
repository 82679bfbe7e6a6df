package realtime

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/tsarna/dares/pkg/dares/o11y"
	"go.uber.org/zap"
)

// Emitter receives decoded inbound events and the client's own lifecycle
// events. *bus.Bus satisfies it.
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) int
}

// ClientBuilder provides a fluent interface for building realtime clients.
type ClientBuilder struct {
	url                  string
	emitter              Emitter
	logger               *zap.Logger
	dialer               Dialer
	scheduler            Scheduler
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	dialTimeout          time.Duration
	metricsProvider      o11y.MetricsProvider
}

// NewClient creates a new realtime client builder.
func NewClient() *ClientBuilder {
	return &ClientBuilder{
		logger:               zap.NewNop(),
		reconnectDelay:       time.Second,
		maxReconnectAttempts: 5,
		dialTimeout:          10 * time.Second,
	}
}

// WithURL sets the WebSocket endpoint, without the token query parameter.
func (b *ClientBuilder) WithURL(url string) *ClientBuilder {
	b.url = url
	return b
}

// WithBus sets where inbound events are delivered.
func (b *ClientBuilder) WithBus(emitter Emitter) *ClientBuilder {
	b.emitter = emitter
	return b
}

// WithLogger sets the logger for the client.
func (b *ClientBuilder) WithLogger(logger *zap.Logger) *ClientBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithDialer replaces the WebSocket transport.
func (b *ClientBuilder) WithDialer(dialer Dialer) *ClientBuilder {
	b.dialer = dialer
	return b
}

// WithScheduler replaces the timer used for reconnect delays.
func (b *ClientBuilder) WithScheduler(scheduler Scheduler) *ClientBuilder {
	b.scheduler = scheduler
	return b
}

// WithReconnectDelay sets the base reconnect delay. The nth consecutive
// reconnect waits n times this long.
func (b *ClientBuilder) WithReconnectDelay(delay time.Duration) *ClientBuilder {
	b.reconnectDelay = delay
	return b
}

// WithMaxReconnectAttempts bounds consecutive reconnects. Zero disables
// automatic reconnection.
func (b *ClientBuilder) WithMaxReconnectAttempts(n int) *ClientBuilder {
	b.maxReconnectAttempts = n
	return b
}

// WithDialTimeout sets the timeout for establishing a connection.
func (b *ClientBuilder) WithDialTimeout(timeout time.Duration) *ClientBuilder {
	if timeout > 0 {
		b.dialTimeout = timeout
	}
	return b
}

// WithMetrics sets the metrics provider for the client.
func (b *ClientBuilder) WithMetrics(provider o11y.MetricsProvider) *ClientBuilder {
	b.metricsProvider = provider
	return b
}

// IsValid validates the builder configuration
func (b *ClientBuilder) IsValid() error {
	if b.url == "" {
		return fmt.Errorf("URL is required")
	}

	u, err := url.Parse(b.url)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	if b.emitter == nil {
		return fmt.Errorf("bus is required")
	}

	if b.reconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive, got %v", b.reconnectDelay)
	}

	if b.maxReconnectAttempts < 0 {
		return fmt.Errorf("max reconnect attempts must not be negative, got %d", b.maxReconnectAttempts)
	}

	return nil
}

// Build creates the client, returning an error if the configuration is invalid.
func (b *ClientBuilder) Build() (*Client, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	dialer := b.dialer
	if dialer == nil {
		dialer = &WebSocketDialer{}
	}

	scheduler := b.scheduler
	if scheduler == nil {
		scheduler = timeScheduler{}
	}

	c := &Client{
		url:                  b.url,
		emitter:              b.emitter,
		logger:               b.logger,
		dialer:               dialer,
		scheduler:            scheduler,
		reconnectDelay:       b.reconnectDelay,
		maxReconnectAttempts: b.maxReconnectAttempts,
		dialTimeout:          b.dialTimeout,
		state:                StateIdle,
	}

	if b.metricsProvider != nil {
		c.metrics = newClientMetrics(b.metricsProvider)
	}

	return c, nil
}

type clientMetrics struct {
	connects          o11y.Counter
	disconnects       o11y.Counter
	reconnects        o11y.Counter
	messagesReceived  o11y.Counter
	messagesMalformed o11y.Counter
	sendsDropped      o11y.Counter
}

func newClientMetrics(provider o11y.MetricsProvider) *clientMetrics {
	return &clientMetrics{
		connects:          provider.Counter("realtime_connects_total"),
		disconnects:       provider.Counter("realtime_disconnects_total"),
		reconnects:        provider.Counter("realtime_reconnects_scheduled_total"),
		messagesReceived:  provider.Counter("realtime_messages_received_total"),
		messagesMalformed: provider.Counter("realtime_messages_malformed_total"),
		sendsDropped:      provider.Counter("realtime_sends_dropped_total"),
	}
}
