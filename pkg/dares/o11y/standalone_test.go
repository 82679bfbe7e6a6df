package o11y

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
	last   MetricsSnapshot
}

func (r *recordingEmitter) Emit(ctx context.Context, event string, payload any) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if snap, ok := payload.(MetricsSnapshot); ok {
		r.last = snap
	}
	return 1
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestStandaloneDefaults(t *testing.T) {
	p := NewStandaloneMetricsProvider(nil, nil)
	assert.Equal(t, 30*time.Second, p.config.Interval)
	assert.Equal(t, MetricsEvent, p.config.Event)
	assert.Equal(t, "unknown", p.config.ServiceName)
}

func TestStandaloneSnapshot(t *testing.T) {
	ctx := context.Background()
	p := NewStandaloneMetricsProvider(nil, &StandaloneMetricsConfig{ServiceName: "dares"})

	p.Counter("emitted").Add(ctx, 2)
	p.Counter("emitted").Add(ctx, 3)
	p.Histogram("latency").Record(ctx, 0.5)
	p.Histogram("latency").Record(ctx, 1.5)
	p.Gauge("subscribers").Set(ctx, 4)
	p.Gauge("subscribers").Set(ctx, 7)

	snap := p.Snapshot()
	assert.Equal(t, "dares", snap.ServiceName)
	assert.Equal(t, int64(5), snap.Counters["emitted"])
	assert.Equal(t, []float64{0.5, 1.5}, snap.Histograms["latency"])
	assert.Equal(t, float64(7), snap.Gauges["subscribers"])
}

func TestStandalonePublishes(t *testing.T) {
	emitter := &recordingEmitter{}
	p := NewStandaloneMetricsProvider(nil, &StandaloneMetricsConfig{
		Interval: 10 * time.Millisecond,
		Event:    "stats",
	})
	p.SetEmitter(emitter)
	p.Counter("ticks").Add(context.Background(), 1)

	require.NoError(t, p.Start())
	require.NoError(t, p.Start())

	assert.Eventually(t, func() bool { return emitter.count() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	stopped := emitter.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, emitter.count(), "no snapshots after Stop")

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	assert.Equal(t, "stats", emitter.events[0])
	assert.Equal(t, int64(1), emitter.last.Counters["ticks"])
}

func TestStandaloneWithoutEmitter(t *testing.T) {
	p := NewStandaloneMetricsProvider(nil, &StandaloneMetricsConfig{Interval: time.Millisecond})
	require.NoError(t, p.Start())
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, p.Stop())
}
