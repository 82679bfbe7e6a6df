// Package o11y defines the metrics and tracing seams used by the bus and the
// realtime client. Implementations live in the otel package or in
// StandaloneMetricsProvider.
package o11y

import (
	"context"
)

// EventEmitter is the minimal interface StandaloneMetricsProvider needs to
// publish snapshots. It avoids an import cycle with the bus package.
type EventEmitter interface {
	Emit(ctx context.Context, event string, payload any) int
}

// MetricsProvider abstracts metrics collection
type MetricsProvider interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// TracingProvider abstracts distributed tracing
type TracingProvider interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Counter represents a monotonically increasing metric
type Counter interface {
	Add(ctx context.Context, value int64, labels ...Label)
}

// Histogram records distribution of values
type Histogram interface {
	Record(ctx context.Context, value float64, labels ...Label)
}

// Gauge represents a value that can go up and down
type Gauge interface {
	Set(ctx context.Context, value float64, labels ...Label)
}

// Span represents a unit of work in a trace
type Span interface {
	SetAttributes(labels ...Label)
	SetStatus(code SpanStatusCode, description string)
	End()
}

// Label represents a key-value pair for metrics and tracing
type Label struct {
	Key   string
	Value string
}

// SpanStatusCode represents the status of a span
type SpanStatusCode int

const (
	SpanStatusUnset SpanStatusCode = iota
	SpanStatusOK
	SpanStatusError
)
