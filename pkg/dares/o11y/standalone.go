package o11y

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsEvent is the local bus event carrying metrics snapshots.
const MetricsEvent = "$metrics"

// StandaloneMetricsConfig configures the standalone metrics provider
type StandaloneMetricsConfig struct {
	Interval    time.Duration // How often to publish metrics (default: 30s)
	Event       string        // Event name to emit snapshots under (default: "$metrics")
	ServiceName string        // Service name to include in metrics
}

// MetricsSnapshot represents the metrics data emitted onto the bus
type MetricsSnapshot struct {
	Timestamp   time.Time            `json:"timestamp"`
	ServiceName string               `json:"service_name"`
	Counters    map[string]int64     `json:"counters"`
	Histograms  map[string][]float64 `json:"histograms"`
	Gauges      map[string]float64   `json:"gauges"`
}

// StandaloneMetricsProvider keeps metrics in memory and emits a snapshot onto
// the event bus periodically. Useful when no OpenTelemetry SDK is installed.
type StandaloneMetricsProvider struct {
	config  StandaloneMetricsConfig
	emitter EventEmitter

	counters   sync.Map // map[string]*standaloneCounter
	histograms sync.Map // map[string]*standaloneHistogram
	gauges     sync.Map // map[string]*standaloneGauge

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started int32
}

// NewStandaloneMetricsProvider creates a new standalone metrics provider.
// The emitter may be nil if snapshots are only read via Snapshot.
func NewStandaloneMetricsProvider(emitter EventEmitter, config *StandaloneMetricsConfig) *StandaloneMetricsProvider {
	if config == nil {
		config = &StandaloneMetricsConfig{}
	}

	cfg := *config
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Event == "" {
		cfg.Event = MetricsEvent
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "unknown"
	}

	return &StandaloneMetricsProvider{
		config:  cfg,
		emitter: emitter,
	}
}

// SetEmitter sets the emitter snapshots are published to. It must be called
// before Start; the provider is usually built before the bus it reports on.
func (s *StandaloneMetricsProvider) SetEmitter(emitter EventEmitter) {
	s.mu.Lock()
	s.emitter = emitter
	s.mu.Unlock()
}

// Start begins the periodic publishing
func (s *StandaloneMetricsProvider) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.publishLoop(ctx)

	return nil
}

// Stop stops publishing, emitting one final snapshot
func (s *StandaloneMetricsProvider) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.started, 1, 0) {
		return nil
	}

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	return nil
}

func (s *StandaloneMetricsProvider) publishLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.publish()

	for {
		select {
		case <-ticker.C:
			s.publish()
		case <-ctx.Done():
			s.publish()
			return
		}
	}
}

func (s *StandaloneMetricsProvider) publish() {
	s.mu.Lock()
	emitter := s.emitter
	s.mu.Unlock()

	if emitter == nil {
		return
	}

	emitter.Emit(context.Background(), s.config.Event, s.Snapshot())
}

// Snapshot returns the current values of all metrics
func (s *StandaloneMetricsProvider) Snapshot() MetricsSnapshot {
	snapshot := MetricsSnapshot{
		Timestamp:   time.Now(),
		ServiceName: s.config.ServiceName,
		Counters:    make(map[string]int64),
		Histograms:  make(map[string][]float64),
		Gauges:      make(map[string]float64),
	}

	s.counters.Range(func(key, value any) bool {
		snapshot.Counters[key.(string)] = atomic.LoadInt64(&value.(*standaloneCounter).value)
		return true
	})

	s.histograms.Range(func(key, value any) bool {
		histogram := value.(*standaloneHistogram)
		histogram.mu.RLock()
		values := make([]float64, len(histogram.values))
		copy(values, histogram.values)
		histogram.mu.RUnlock()
		snapshot.Histograms[key.(string)] = values
		return true
	})

	s.gauges.Range(func(key, value any) bool {
		snapshot.Gauges[key.(string)] = value.(*standaloneGauge).getValue()
		return true
	})

	return snapshot
}

func (s *StandaloneMetricsProvider) Counter(name string) Counter {
	actual, _ := s.counters.LoadOrStore(name, &standaloneCounter{})
	return actual.(*standaloneCounter)
}

func (s *StandaloneMetricsProvider) Histogram(name string) Histogram {
	actual, _ := s.histograms.LoadOrStore(name, &standaloneHistogram{})
	return actual.(*standaloneHistogram)
}

func (s *StandaloneMetricsProvider) Gauge(name string) Gauge {
	actual, _ := s.gauges.LoadOrStore(name, &standaloneGauge{})
	return actual.(*standaloneGauge)
}

type standaloneCounter struct {
	value int64
}

func (c *standaloneCounter) Add(ctx context.Context, value int64, labels ...Label) {
	atomic.AddInt64(&c.value, value)
}

type standaloneHistogram struct {
	mu     sync.RWMutex
	values []float64
}

func (h *standaloneHistogram) Record(ctx context.Context, value float64, labels ...Label) {
	h.mu.Lock()
	h.values = append(h.values, value)
	h.mu.Unlock()
}

type standaloneGauge struct {
	mu    sync.RWMutex
	value float64
}

func (g *standaloneGauge) Set(ctx context.Context, value float64, labels ...Label) {
	g.mu.Lock()
	g.value = value
	g.mu.Unlock()
}

func (g *standaloneGauge) getValue() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}
