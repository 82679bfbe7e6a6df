// Package otel implements the o11y interfaces on top of OpenTelemetry.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tsarna/dares/pkg/dares/o11y"
)

// Provider implements both o11y.MetricsProvider and o11y.TracingProvider.
// Instruments are created once per name and reused.
type Provider struct {
	meter  metric.Meter
	tracer trace.Tracer
	logger *zap.Logger

	mu         sync.Mutex
	counters   map[string]*counter
	histograms map[string]*histogram
	gauges     map[string]*gauge
}

// NewProvider returns a Provider whose instruments are scoped to serviceName
// using the global OpenTelemetry meter and tracer providers.
func NewProvider(serviceName, serviceVersion string, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		meter:      otel.Meter(serviceName, metric.WithInstrumentationVersion(serviceVersion)),
		tracer:     otel.Tracer(serviceName, trace.WithInstrumentationVersion(serviceVersion)),
		logger:     logger,
		counters:   make(map[string]*counter),
		histograms: make(map[string]*histogram),
		gauges:     make(map[string]*gauge),
	}
}

func (p *Provider) Counter(name string) o11y.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[name]; ok {
		return c
	}

	instrument, err := p.meter.Int64Counter(name)
	if err != nil {
		p.logger.Warn("Failed to create counter", zap.String("name", name), zap.Error(err))
	}
	c := &counter{counter: instrument}
	p.counters[name] = c
	return c
}

func (p *Provider) Histogram(name string) o11y.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[name]; ok {
		return h
	}

	instrument, err := p.meter.Float64Histogram(name)
	if err != nil {
		p.logger.Warn("Failed to create histogram", zap.String("name", name), zap.Error(err))
	}
	h := &histogram{histogram: instrument}
	p.histograms[name] = h
	return h
}

// Gauge is backed by an UpDownCounter. Set records the difference from the
// last value set for the same label set so exported values track Set calls.
func (p *Provider) Gauge(name string) o11y.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()

	if g, ok := p.gauges[name]; ok {
		return g
	}

	instrument, err := p.meter.Float64UpDownCounter(name)
	if err != nil {
		p.logger.Warn("Failed to create gauge", zap.String("name", name), zap.Error(err))
	}
	g := &gauge{counter: instrument, last: make(map[attribute.Distinct]float64)}
	p.gauges[name] = g
	return g
}

// StartSpan starts a span on the provider's tracer.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

func toAttributes(labels []o11y.Label) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(labels))
	for i, label := range labels {
		attrs[i] = attribute.String(label.Key, label.Value)
	}
	return attrs
}

type counter struct {
	counter metric.Int64Counter
}

func (c *counter) Add(ctx context.Context, value int64, labels ...o11y.Label) {
	if c.counter == nil {
		return
	}
	c.counter.Add(ctx, value, metric.WithAttributes(toAttributes(labels)...))
}

type histogram struct {
	histogram metric.Float64Histogram
}

func (h *histogram) Record(ctx context.Context, value float64, labels ...o11y.Label) {
	if h.histogram == nil {
		return
	}
	h.histogram.Record(ctx, value, metric.WithAttributes(toAttributes(labels)...))
}

type gauge struct {
	counter metric.Float64UpDownCounter

	mu   sync.Mutex
	last map[attribute.Distinct]float64
}

func (g *gauge) Set(ctx context.Context, value float64, labels ...o11y.Label) {
	if g.counter == nil {
		return
	}

	set := attribute.NewSet(toAttributes(labels)...)

	g.mu.Lock()
	delta := value - g.last[set.Equivalent()]
	g.last[set.Equivalent()] = value
	g.mu.Unlock()

	if delta != 0 {
		g.counter.Add(ctx, delta, metric.WithAttributeSet(set))
	}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) SetAttributes(labels ...o11y.Label) {
	s.span.SetAttributes(toAttributes(labels)...)
}

func (s *otelSpan) SetStatus(code o11y.SpanStatusCode, description string) {
	switch code {
	case o11y.SpanStatusOK:
		s.span.SetStatus(codes.Ok, description)
	case o11y.SpanStatusError:
		s.span.SetStatus(codes.Error, description)
	default:
		s.span.SetStatus(codes.Unset, description)
	}
}

func (s *otelSpan) End() {
	s.span.End()
}
