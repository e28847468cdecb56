// Package flowtelemetry provides the Telemetry/Span ports the engine uses
// to emit spans and metrics, grounded in the teacher's core.Telemetry
// interface (core/interfaces.go) and wired to real OpenTelemetry APIs
// (telemetry/otel.go) rather than a hand-rolled metrics sink. The engine
// does not configure exporters itself — that is the host application's
// concern — it only pulls tracers/meters off the global otel providers,
// so importing this package never requires wiring an SDK.
package flowtelemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry is the port every engine component uses to emit spans and
// metrics. A no-op implementation is used when none is configured.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span mirrors core.Span (core/interfaces.go).
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

type noopTelemetry struct{}

// NewNoop returns a Telemetry that discards every span/metric.
func NewNoop() Telemetry { return noopTelemetry{} }

func (noopTelemetry) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}
func (noopTelemetry) RecordMetric(string, float64, map[string]string) {}

type noopSpan struct{}

func (noopSpan) End()                             {}
func (noopSpan) SetAttribute(string, interface{}) {}
func (noopSpan) RecordError(error)                {}

// OTel adapts the global OpenTelemetry tracer/meter providers to the
// Telemetry port. Histograms are keyed lazily per metric name since the
// engine's metric set (execution duration, cache hit/miss, rate-limit
// denials) is small and fixed. A single OTel value is shared
// across every concurrent Executor.Run call, so histograms is guarded the
// same way ratelimit.window and resultcache.Cache guard their shared maps.
type OTel struct {
	tracer trace.Tracer
	meter  metric.Meter

	mu         sync.Mutex
	histograms map[string]metric.Float64Histogram
}

// NewOTel creates an OTel adapter scoped to instrumentationName, typically
// the module path ("github.com/agentforge/flowengine").
func NewOTel(instrumentationName string) *OTel {
	return &OTel{
		tracer:     otel.Tracer(instrumentationName),
		meter:      otel.Meter(instrumentationName),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (o *OTel) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := o.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

func (o *OTel) RecordMetric(name string, value float64, labels map[string]string) {
	o.mu.Lock()
	h, ok := o.histograms[name]
	if !ok {
		var err error
		h, err = o.meter.Float64Histogram(name)
		if err != nil {
			o.mu.Unlock()
			return
		}
		o.histograms[name] = h
	}
	o.mu.Unlock()

	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	h.Record(context.Background(), value, metric.WithAttributes(attrs...))
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, time.Now().String()))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}
