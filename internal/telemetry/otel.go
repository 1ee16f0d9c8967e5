package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// OtelTracer implements Tracer on top of a named go.opentelemetry.io/otel/trace.Tracer.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer returns a Tracer backed by the global OTel tracer provider,
// scoped to instrumentationName.
func NewOtelTracer(instrumentationName string) *OtelTracer {
	return &OtelTracer{tracer: otel.Tracer(instrumentationName)}
}

func (t *OtelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) SetAttribute(key string, value any) {
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
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) End() { s.span.End() }

// OtelMetrics implements Metrics on top of a named go.opentelemetry.io/otel/metric.Meter.
// Instruments are created lazily and cached by name.
type OtelMetrics struct {
	meter      metric.Meter
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64Gauge
}

// NewOtelMetrics returns a Metrics backed by the global OTel meter provider.
func NewOtelMetrics(instrumentationName string) *OtelMetrics {
	return &OtelMetrics{
		meter:      otel.Meter(instrumentationName),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

func (m *OtelMetrics) IncrCounter(name string, value int64, tags ...string) {
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Int64Counter(name)
		if err != nil {
			return
		}
		m.counters[name] = c
	}
	c.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (m *OtelMetrics) ObserveDuration(name string, seconds float64, tags ...string) {
	h, ok := m.histograms[name]
	if !ok {
		var err error
		h, err = m.meter.Float64Histogram(name)
		if err != nil {
			return
		}
		m.histograms[name] = h
	}
	h.Record(context.Background(), seconds, metric.WithAttributes(tagAttrs(tags)...))
}

func (m *OtelMetrics) SetGauge(name string, value float64, tags ...string) {
	g, ok := m.gauges[name]
	if !ok {
		var err error
		g, err = m.meter.Float64Gauge(name)
		if err != nil {
			return
		}
		m.gauges[name] = g
	}
	g.Record(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func tagAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}
