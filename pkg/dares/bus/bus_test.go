package bus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/dares/pkg/dares/o11y"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// recorder collects deliveries for assertions
type recorder struct {
	mu     sync.Mutex
	name   string
	order  *[]string
	events []delivery
	err    error
}

type delivery struct {
	Event   string
	Payload any
}

func newRecorder(name string, order *[]string) *recorder {
	return &recorder{name: name, order: order}
}

func (r *recorder) handle(ctx context.Context, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, delivery{Event: event, Payload: payload})
	if r.order != nil {
		*r.order = append(*r.order, r.name)
	}
	return r.err
}

func (r *recorder) deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]delivery, len(r.events))
	copy(result, r.events)
	return result
}

func newTestBus(t *testing.T) *Bus {
	b, err := New().WithLogger(zaptest.NewLogger(t)).Build()
	require.NoError(t, err)
	return b
}

func TestBuilder(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		b, err := New().Build()
		require.NoError(t, err)
		assert.NotNil(t, b.logger)
		assert.Empty(t, b.Events())
		assert.Equal(t, "bus", b.String())
	})

	t.Run("fluent interface returns same builder", func(t *testing.T) {
		builder := New()
		assert.Same(t, builder, builder.WithLogger(zap.NewNop()))
		assert.Same(t, builder, builder.WithName("main"))
		assert.Same(t, builder, builder.WithMetrics(o11y.NewStandaloneMetricsProvider(nil, nil)))
		assert.Same(t, builder, builder.WithTracing(nil))
	})

	t.Run("named bus", func(t *testing.T) {
		b, err := New().WithName("main").Build()
		require.NoError(t, err)
		assert.Equal(t, "bus(main)", b.String())
	})

	t.Run("overlong name rejected", func(t *testing.T) {
		long := make([]byte, 65)
		for i := range long {
			long[i] = 'x'
		}
		_, err := New().WithName(string(long)).Build()
		assert.Error(t, err)
	})
}

func TestEmitDeliversInRegistrationOrder(t *testing.T) {
	b := newTestBus(t)

	var order []string
	first := newRecorder("first", &order)
	second := newRecorder("second", &order)
	third := newRecorder("third", &order)

	b.Subscribe("dare_updated", first.handle)
	b.Subscribe("dare_updated", second.handle)
	b.Subscribe("dare_updated", third.handle)

	n := b.Emit(context.Background(), "dare_updated", map[string]any{"id": "d1"})

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.Equal(t, map[string]any{"id": "d1"}, first.deliveries()[0].Payload)
}

func TestEmitOnlyReachesMatchingEvent(t *testing.T) {
	b := newTestBus(t)

	rec := newRecorder("r", nil)
	b.Subscribe("notification", rec.handle)

	assert.Equal(t, 0, b.Emit(context.Background(), "activity", "ignored"))
	assert.Equal(t, 1, b.Emit(context.Background(), "notification", "hello"))

	deliveries := rec.deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "notification", deliveries[0].Event)
	assert.Equal(t, "hello", deliveries[0].Payload)
}

func TestEmitWithNoSubscribers(t *testing.T) {
	b := newTestBus(t)
	assert.Equal(t, 0, b.Emit(context.Background(), "nobody", nil))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := newTestBus(t)

	first := newRecorder("first", nil)
	second := newRecorder("second", nil)

	unsubscribeFirst := b.Subscribe("activity", first.handle)
	b.Subscribe("activity", second.handle)

	unsubscribeFirst()
	assert.NotPanics(t, assert.PanicTestFunc(unsubscribeFirst))
	assert.Equal(t, 1, b.SubscriberCount("activity"))

	b.Emit(context.Background(), "activity", 1)
	assert.Empty(t, first.deliveries())
	assert.Len(t, second.deliveries(), 1)
}

func TestUnsubscribeLastRemovesEntry(t *testing.T) {
	b := newTestBus(t)

	rec := newRecorder("r", nil)
	unsubscribeA := b.Subscribe("a", rec.handle)
	unsubscribeB := b.Subscribe("b", rec.handle)

	assert.Equal(t, []string{"a", "b"}, b.Events())

	unsubscribeA()
	assert.Equal(t, []string{"b"}, b.Events())
	_, exists := b.subscriptions["a"]
	assert.False(t, exists, "empty registry entry should be removed")

	unsubscribeB()
	assert.Empty(t, b.Events())
	assert.False(t, b.HasSubscribers("b"))
}

func TestDuplicateRegistrationGivesIndependentHandles(t *testing.T) {
	b := newTestBus(t)

	rec := newRecorder("r", nil)
	unsubscribeOne := b.Subscribe("notification", rec.handle)
	unsubscribeTwo := b.Subscribe("notification", rec.handle)

	b.Emit(context.Background(), "notification", "x")
	assert.Len(t, rec.deliveries(), 2)

	unsubscribeOne()
	unsubscribeOne()
	assert.Equal(t, 1, b.SubscriberCount("notification"))

	unsubscribeTwo()
	assert.Equal(t, 0, b.SubscriberCount("notification"))
}

func TestNilHandler(t *testing.T) {
	b := newTestBus(t)

	unsubscribe := b.Subscribe("x", nil)
	assert.NotPanics(t, assert.PanicTestFunc(unsubscribe))
	assert.False(t, b.HasSubscribers("x"))

	unsubscribe = b.SubscribePattern("#", nil)
	assert.NotPanics(t, assert.PanicTestFunc(unsubscribe))
	assert.False(t, b.HasSubscribers("x"))
}

func TestEmitIsolation(t *testing.T) {
	t.Run("panicking handler", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		b, err := New().WithLogger(zap.New(core)).Build()
		require.NoError(t, err)

		before := newRecorder("before", nil)
		after := newRecorder("after", nil)

		b.Subscribe("notification", before.handle)
		b.Subscribe("notification", func(ctx context.Context, event string, payload any) error {
			panic("boom")
		})
		b.Subscribe("notification", after.handle)

		assert.NotPanics(t, func() {
			b.Emit(context.Background(), "notification", "payload")
		})

		assert.Len(t, before.deliveries(), 1)
		assert.Len(t, after.deliveries(), 1)
		assert.Equal(t, 1, logs.FilterMessage("Event handler panicked").Len())
	})

	t.Run("error returning handler", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		b, err := New().WithLogger(zap.New(core)).Build()
		require.NoError(t, err)

		failing := newRecorder("failing", nil)
		failing.err = errors.New("handler failed")
		after := newRecorder("after", nil)

		b.Subscribe("activity", failing.handle)
		b.Subscribe("activity", after.handle)

		b.Emit(context.Background(), "activity", 42)

		assert.Len(t, failing.deliveries(), 1)
		assert.Len(t, after.deliveries(), 1)
		assert.Equal(t, 1, logs.FilterMessage("Error in event handler").Len())
	})
}

func TestUnsubscribeDuringEmit(t *testing.T) {
	b := newTestBus(t)

	var order []string
	var unsubscribeSelf Unsubscribe
	unsubscribeSelf = b.Subscribe("activity", func(ctx context.Context, event string, payload any) error {
		order = append(order, "self")
		unsubscribeSelf()
		return nil
	})
	second := newRecorder("second", &order)
	third := newRecorder("third", &order)
	b.Subscribe("activity", second.handle)
	b.Subscribe("activity", third.handle)

	b.Emit(context.Background(), "activity", nil)
	assert.Equal(t, []string{"self", "second", "third"}, order, "no handler skipped or repeated")

	order = nil
	b.Emit(context.Background(), "activity", nil)
	assert.Equal(t, []string{"second", "third"}, order)
}

func TestSubscribeDuringEmitTakesEffectNextTime(t *testing.T) {
	b := newTestBus(t)

	late := newRecorder("late", nil)
	subscribed := false
	b.Subscribe("activity", func(ctx context.Context, event string, payload any) error {
		if !subscribed {
			subscribed = true
			b.Subscribe("activity", late.handle)
		}
		return nil
	})

	b.Emit(context.Background(), "activity", 1)
	assert.Empty(t, late.deliveries())

	b.Emit(context.Background(), "activity", 2)
	assert.Len(t, late.deliveries(), 1)
}

func TestSubscribePattern(t *testing.T) {
	b := newTestBus(t)

	var order []string
	exact := newRecorder("exact", &order)
	single := newRecorder("single", &order)
	all := newRecorder("all", &order)

	b.SubscribePattern("#", all.handle)
	b.SubscribePattern("dare/+", single.handle)
	b.Subscribe("dare/updated", exact.handle)

	assert.Equal(t, 3, b.SubscriberCount("dare/updated"))

	b.Emit(context.Background(), "dare/updated", "d1")
	assert.Equal(t, []string{"exact", "all", "single"}, order, "exact handlers first, then patterns in registration order")

	b.Emit(context.Background(), "notification", "n1")
	assert.Len(t, all.deliveries(), 2)
	assert.Len(t, single.deliveries(), 1)

	t.Run("unsubscribe pattern", func(t *testing.T) {
		unsubscribe := b.SubscribePattern("switch/#", single.handle)
		assert.True(t, b.HasSubscribers("switch/game/updated"))
		unsubscribe()
		unsubscribe()
		assert.Equal(t, 1, b.SubscriberCount("switch/game/updated"))
	})
}

func TestBusMetrics(t *testing.T) {
	metrics := o11y.NewStandaloneMetricsProvider(nil, nil)
	b, err := New().WithMetrics(metrics).Build()
	require.NoError(t, err)

	unsubscribe := b.Subscribe("a", func(ctx context.Context, event string, payload any) error {
		return errors.New("nope")
	})
	b.SubscribePattern("#", func(ctx context.Context, event string, payload any) error { return nil })

	b.Emit(context.Background(), "a", nil)
	b.Emit(context.Background(), "b", nil)

	snapshot := metrics.Snapshot()
	assert.Equal(t, int64(2), snapshot.Counters["bus_events_emitted_total"])
	assert.Equal(t, int64(1), snapshot.Counters["bus_handler_errors_total"])
	assert.Equal(t, float64(2), snapshot.Gauges["bus_subscriptions"])

	unsubscribe()
	assert.Equal(t, float64(1), metrics.Snapshot().Gauges["bus_subscriptions"])
}

type spanRecorder struct {
	mu    sync.Mutex
	names []string
}

func (s *spanRecorder) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) SetAttributes(labels ...o11y.Label)                     {}
func (noopSpan) SetStatus(code o11y.SpanStatusCode, description string) {}
func (noopSpan) End()                                                   {}

func TestBusTracing(t *testing.T) {
	tracer := &spanRecorder{}
	b, err := New().WithTracing(tracer).Build()
	require.NoError(t, err)

	b.Emit(context.Background(), "x", nil)
	assert.Equal(t, []string{"bus.emit"}, tracer.names)
}

func TestConcurrentSubscribeAndEmit(t *testing.T) {
	b := newTestBus(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				unsubscribe := b.Subscribe("activity", func(ctx context.Context, event string, payload any) error { return nil })
				unsubscribe()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Emit(context.Background(), "activity", j)
			}
		}()
	}
	wg.Wait()

	assert.False(t, b.HasSubscribers("activity"))
}
