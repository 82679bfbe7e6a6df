// Package bus is the in-process event bus that decouples producers of
// realtime events (the socket client, pollers, metrics) from consumers.
//
// Delivery is synchronous: Emit invokes every matching handler on the calling
// goroutine, in registration order, before it returns.
package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/amir-yaghoubi/mqttpattern"
	"github.com/tsarna/dares/pkg/dares/o11y"
	"go.uber.org/zap"
)

// Handler receives an emitted event. A returned error or a panic is logged by
// the bus and never stops delivery to the remaining handlers.
type Handler func(ctx context.Context, event string, payload any) error

// Unsubscribe removes the subscription it was returned for. Calling it more
// than once is a no-op.
type Unsubscribe func()

// subscription is one registration handle. Handles are compared by identity,
// so registering the same function twice yields two independent handles.
type subscription struct {
	pattern string
	handler Handler
}

// Bus routes emitted events to subscribed handlers. Create one with New.
type Bus struct {
	logger *zap.Logger
	name   string

	mu            sync.RWMutex
	subscriptions map[string][]*subscription
	patterns      []*subscription

	tracing           o11y.TracingProvider
	emitCounter       o11y.Counter
	errorCounter      o11y.Counter
	subscriptionGauge o11y.Gauge
}

// Subscribe registers handler for the exact event name.
func (b *Bus) Subscribe(event string, handler Handler) Unsubscribe {
	if handler == nil {
		return func() {}
	}

	sub := &subscription{handler: handler}

	b.mu.Lock()
	b.subscriptions[event] = append(b.subscriptions[event], sub)
	b.mu.Unlock()
	b.updateGauge()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.remove(event, sub)
		})
	}
}

// SubscribePattern registers handler for every event whose name matches an
// MQTT-style pattern ("dare/+", "notifications/#", "#"). Pattern handlers run
// after the exact-name handlers of the same event.
func (b *Bus) SubscribePattern(pattern string, handler Handler) Unsubscribe {
	if handler == nil {
		return func() {}
	}

	sub := &subscription{pattern: pattern, handler: handler}

	b.mu.Lock()
	b.patterns = append(b.patterns, sub)
	b.mu.Unlock()
	b.updateGauge()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.removePattern(sub)
		})
	}
}

func (b *Bus) remove(event string, sub *subscription) {
	b.mu.Lock()
	subs := b.subscriptions[event]
	for i, s := range subs {
		if s == sub {
			// copy so that snapshots taken by in-flight Emit calls stay intact
			remaining := make([]*subscription, 0, len(subs)-1)
			remaining = append(remaining, subs[:i]...)
			remaining = append(remaining, subs[i+1:]...)
			if len(remaining) == 0 {
				delete(b.subscriptions, event)
			} else {
				b.subscriptions[event] = remaining
			}
			break
		}
	}
	b.mu.Unlock()
	b.updateGauge()
}

func (b *Bus) removePattern(sub *subscription) {
	b.mu.Lock()
	for i, s := range b.patterns {
		if s == sub {
			remaining := make([]*subscription, 0, len(b.patterns)-1)
			remaining = append(remaining, b.patterns[:i]...)
			remaining = append(remaining, b.patterns[i+1:]...)
			b.patterns = remaining
			break
		}
	}
	b.mu.Unlock()
	b.updateGauge()
}

// Emit delivers payload to every handler registered for event, returning the
// number of handlers invoked. The handler list is snapshotted before the first
// call, so handlers may subscribe or unsubscribe during delivery; such changes
// take effect from the next Emit.
func (b *Bus) Emit(ctx context.Context, event string, payload any) int {
	if ctx == nil {
		ctx = context.Background()
	}

	if b.tracing != nil {
		var span o11y.Span
		ctx, span = b.tracing.StartSpan(ctx, "bus.emit")
		defer span.End()
		span.SetAttributes(o11y.Label{Key: "event", Value: event})
	}

	b.mu.RLock()
	exact := b.subscriptions[event]
	snapshot := make([]*subscription, 0, len(exact)+len(b.patterns))
	snapshot = append(snapshot, exact...)
	for _, sub := range b.patterns {
		if mqttpattern.Matches(sub.pattern, event) {
			snapshot = append(snapshot, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range snapshot {
		b.invoke(ctx, sub, event, payload)
	}

	if b.emitCounter != nil {
		b.emitCounter.Add(ctx, 1, o11y.Label{Key: "event", Value: event})
	}

	return len(snapshot)
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, event string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("event", event),
				zap.String("pattern", sub.pattern),
				zap.Any("panic", r))
			b.countError(ctx, event, "panic")
		}
	}()

	if err := sub.handler(ctx, event, payload); err != nil {
		b.logger.Error("Error in event handler",
			zap.String("event", event),
			zap.String("pattern", sub.pattern),
			zap.Error(err))
		b.countError(ctx, event, "error")
	}
}

func (b *Bus) countError(ctx context.Context, event, kind string) {
	if b.errorCounter != nil {
		b.errorCounter.Add(ctx, 1,
			o11y.Label{Key: "event", Value: event},
			o11y.Label{Key: "kind", Value: kind},
		)
	}
}

func (b *Bus) updateGauge() {
	if b.subscriptionGauge == nil {
		return
	}

	b.mu.RLock()
	count := len(b.patterns)
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	b.mu.RUnlock()

	b.subscriptionGauge.Set(context.Background(), float64(count))
}

// HasSubscribers reports whether Emit(event) would reach at least one handler.
func (b *Bus) HasSubscribers(event string) bool {
	return b.SubscriberCount(event) > 0
}

// SubscriberCount returns the number of handlers Emit(event) would invoke.
func (b *Bus) SubscriberCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.subscriptions[event])
	for _, sub := range b.patterns {
		if mqttpattern.Matches(sub.pattern, event) {
			count++
		}
	}
	return count
}

// Events returns the sorted event names with at least one exact subscription.
func (b *Bus) Events() []string {
	b.mu.RLock()
	events := make([]string, 0, len(b.subscriptions))
	for event := range b.subscriptions {
		events = append(events, event)
	}
	b.mu.RUnlock()

	sort.Strings(events)
	return events
}

// String returns the bus name for logs.
func (b *Bus) String() string {
	if b.name == "" {
		return "bus"
	}
	return fmt.Sprintf("bus(%s)", b.name)
}
