package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tsarna/dares/pkg/dares/bus"
	"github.com/tsarna/dares/pkg/dares/realtime"
	"github.com/tsarna/dares/pkg/dares/subutils"
	"go.uber.org/zap"
)

// EventSource is the part of the bus a PushStrategy needs.
type EventSource interface {
	SubscribePattern(pattern string, handler bus.Handler) bus.Unsubscribe
}

// DefaultPushEvents are the server events that invalidate dashboard data, plus
// connected so that anything missed while offline is refetched.
var DefaultPushEvents = []string{
	realtime.EventNotification,
	realtime.EventNotificationsRead,
	realtime.EventDareUpdated,
	realtime.EventSwitchGameUpdated,
	realtime.EventLeaderboardUpdated,
	realtime.EventActivity,
	realtime.EventConnected,
}

// PushQueueSize bounds the signals waiting behind a running one. Further
// events are coalesced into the pending signals.
const PushQueueSize = 4

// PushStrategy signals on bus events. Signals run on a background goroutine
// so a slow refetch never blocks the emitter.
type PushStrategy struct {
	source EventSource
	events []string
	signal SignalFunc
	logger *zap.Logger

	mu           sync.Mutex
	ctx          context.Context
	async        *subutils.AsyncHandler
	unsubscribes []bus.Unsubscribe
}

// NewPushStrategy creates a strategy that signals for each delivery of the
// given events or patterns. An empty list means DefaultPushEvents.
func NewPushStrategy(source EventSource, events []string, signal SignalFunc, logger *zap.Logger) *PushStrategy {
	if len(events) == 0 {
		events = DefaultPushEvents
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PushStrategy{
		source: source,
		events: append([]string(nil), events...),
		signal: signal,
		logger: logger,
	}
}

// Start subscribes to the configured events. Signals receive ctx.
func (p *PushStrategy) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unsubscribes != nil {
		return fmt.Errorf("push strategy is already started")
	}
	if p.source == nil || p.signal == nil {
		return fmt.Errorf("push strategy needs an event source and a signal function")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	p.ctx = ctx
	p.async = subutils.NewAsyncHandler(p.deliver, PushQueueSize, p.logger).Start()

	p.unsubscribes = make([]bus.Unsubscribe, 0, len(p.events))
	for _, event := range p.events {
		p.unsubscribes = append(p.unsubscribes, p.source.SubscribePattern(event, p.handle))
	}

	p.logger.Debug("Push refresh started", zap.Strings("events", p.events))
	return nil
}

// handle runs on the emitting goroutine and only queues the signal.
func (p *PushStrategy) handle(_ context.Context, event string, payload any) error {
	p.mu.Lock()
	ctx, async := p.ctx, p.async
	p.mu.Unlock()

	if async == nil {
		return nil
	}

	err := async.Handle(ctx, event, nil)
	if errors.Is(err, subutils.ErrQueueFull) || errors.Is(err, subutils.ErrHandlerClosed) {
		p.logger.Debug("Refresh already pending", zap.String("event", event))
		return nil
	}
	return err
}

func (p *PushStrategy) deliver(ctx context.Context, event string, _ any) error {
	if ctx.Err() != nil {
		return nil
	}
	p.signal(ctx, event)
	return nil
}

// Stop unsubscribes and waits for queued signals to finish.
func (p *PushStrategy) Stop() error {
	p.mu.Lock()
	unsubscribes := p.unsubscribes
	async := p.async
	p.unsubscribes = nil
	p.async = nil
	p.mu.Unlock()

	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}
	if async != nil {
		return async.Close()
	}
	return nil
}

func (p *PushStrategy) Mode() Mode {
	return ModePush
}
