// Package realtime maintains the application's WebSocket connection and feeds
// server events into the event bus.
//
// A Client owns at most one live connection. Unexpected closes are retried
// with a linear backoff (delay, 2*delay, 3*delay, ...) up to a fixed number of
// consecutive attempts; a successful open resets the count.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tsarna/dares/pkg/dares/o11y"
	"go.uber.org/zap"
)

// Client is a reconnecting realtime connection. Create one with NewClient.
type Client struct {
	url                  string
	emitter              Emitter
	logger               *zap.Logger
	dialer               Dialer
	scheduler            Scheduler
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	dialTimeout          time.Duration
	metrics              *clientMetrics

	mu           sync.Mutex
	state        State
	conn         Conn
	cancel       context.CancelFunc
	baseCtx      context.Context
	token        string
	attempts     int
	connectionID string
	timer        Timer
	// generation is bumped by every Connect and Disconnect. Goroutines and
	// timers started for an older generation exit without touching state.
	generation uint64
}

// Connect opens the connection in the background. It is a no-op while the
// client is already connecting or connected. The only error returned is for a
// URL that cannot carry the token; transport failures go through the
// reconnect path and are reported as disconnected events.
func (c *Client) Connect(ctx context.Context, token string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}

	target, err := withToken(c.url, token)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.stopTimerLocked()
	c.generation++
	gen := c.generation
	c.token = token
	c.baseCtx = ctx
	c.state = StateConnecting

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx, cancel, gen, target)

	return nil
}

func (c *Client) run(ctx context.Context, cancel context.CancelFunc, gen uint64, target string) {
	defer cancel()

	connectionID := uuid.NewString()
	logger := c.logger.With(zap.String("connectionId", connectionID))

	dialCtx, dialCancel := context.WithTimeout(ctx, c.dialTimeout)
	conn, err := c.dialer.Dial(dialCtx, target)
	dialCancel()
	if err != nil {
		logger.Warn("Realtime connection failed", zap.String("url", c.url), zap.Error(err))
		c.handleClose(gen, err.Error(), 0)
		return
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		_ = conn.Close("superseded")
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.connectionID = connectionID
	c.mu.Unlock()

	logger.Info("Realtime client connected", zap.String("url", c.url))
	if c.metrics != nil {
		c.metrics.connects.Add(ctx, 1)
	}
	c.emitter.Emit(ctx, EventConnected, ConnectedPayload{ConnectionID: connectionID})

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if c.superseded(gen) {
				_ = conn.Close("superseded")
				return
			}

			reason, code := closeDetails(err)
			var closeErr *CloseError
			if !errors.As(err, &closeErr) {
				logger.Warn("Realtime transport error", zap.Error(err))
			}
			_ = conn.Close(reason)
			c.handleClose(gen, reason, code)
			return
		}

		c.dispatch(ctx, logger, data)
	}
}

func (c *Client) dispatch(ctx context.Context, logger *zap.Logger, data []byte) {
	env, err := Decode(data)
	if err != nil {
		logger.Warn("Dropping malformed realtime message", zap.Int("size", len(data)), zap.Error(err))
		if c.metrics != nil {
			c.metrics.messagesMalformed.Add(ctx, 1)
		}
		return
	}

	if env.PayloadErr != nil {
		logger.Warn("Forwarding realtime event with unexpected payload",
			zap.String("event", env.Event), zap.Error(env.PayloadErr))
	} else if _, ok := env.Payload.(UnknownPayload); ok {
		logger.Debug("Forwarding unknown realtime event", zap.String("event", env.Event))
	}
	if c.metrics != nil {
		c.metrics.messagesReceived.Add(ctx, 1, o11y.Label{Key: "event", Value: env.Event})
	}

	c.emitter.Emit(ctx, env.Event, env.Payload)
}

func (c *Client) handleClose(gen uint64, reason string, code int) {
	c.mu.Lock()
	if c.generation != gen {
		// Disconnect or a newer Connect already took over
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connectionID = ""
	c.state = StateDisconnected
	ctx := context.WithoutCancel(c.baseCtx)
	c.mu.Unlock()

	c.logger.Info("Realtime client disconnected", zap.String("reason", reason), zap.Int("code", code))
	if c.metrics != nil {
		c.metrics.disconnects.Add(ctx, 1)
	}
	c.emitter.Emit(ctx, EventDisconnected, DisconnectedPayload{Reason: reason, Code: code})

	c.mu.Lock()
	defer c.mu.Unlock()

	// a disconnected handler may have called Connect or Disconnect
	if c.generation != gen || c.state != StateDisconnected {
		return
	}
	if c.baseCtx.Err() != nil {
		c.logger.Debug("Not reconnecting, context is done")
		return
	}
	if c.attempts >= c.maxReconnectAttempts {
		c.logger.Warn("Giving up on realtime connection", zap.Int("attempts", c.attempts))
		return
	}

	c.attempts++
	delay := c.reconnectDelay * time.Duration(c.attempts)
	token := c.token
	c.timer = c.scheduler.AfterFunc(delay, func() {
		c.reconnect(gen, token)
	})

	c.logger.Info("Scheduling realtime reconnect",
		zap.Int("attempt", c.attempts),
		zap.Int("maxAttempts", c.maxReconnectAttempts),
		zap.Duration("delay", delay))
	if c.metrics != nil {
		c.metrics.reconnects.Add(ctx, 1)
	}
}

func (c *Client) reconnect(gen uint64, token string) {
	c.mu.Lock()
	if c.generation != gen || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	ctx := c.baseCtx
	c.mu.Unlock()

	if err := c.Connect(ctx, token); err != nil {
		c.logger.Error("Realtime reconnect failed", zap.Error(err))
	}
}

// Disconnect closes the connection and cancels any pending reconnect. The
// client returns to idle and can be connected again.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.generation++
	c.stopTimerLocked()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.connectionID = ""
	c.attempts = 0
	c.state = StateIdle
	c.mu.Unlock()

	var err error
	if conn != nil {
		c.logger.Info("Disconnecting realtime client")
		if closeErr := conn.Close("client disconnect"); closeErr != nil {
			err = fmt.Errorf("failed to close connection: %w", closeErr)
		}
	}

	if cancel != nil {
		cancel()
	}

	return err
}

func (c *Client) superseded(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation != gen
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Send writes an {event, payload} message when connected. While not connected
// the message is dropped and nil is returned; there is no queueing.
func (c *Client) Send(ctx context.Context, event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected && conn != nil
	c.mu.Unlock()

	if !connected {
		c.logger.Debug("Dropping realtime send while not connected", zap.String("event", event))
		if c.metrics != nil {
			c.metrics.sendsDropped.Add(ctx, 1, o11y.Label{Key: "event", Value: event})
		}
		return nil
	}

	frame, err := Encode(event, data)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", event, err)
	}

	if err := conn.Write(ctx, frame); err != nil {
		return fmt.Errorf("failed to send %s message: %w", event, err)
	}

	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectAttempts returns the number of consecutive reconnects scheduled
// since the last successful open.
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// ConnectionID identifies the current connection in logs. It is empty when
// not connected.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionID
}

func closeDetails(err error) (string, int) {
	var closeErr *CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Reason, closeErr.Code
	}
	return err.Error(), 0
}
