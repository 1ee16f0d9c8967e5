package telemetry

import "context"

// NoopLogger discards every log line. Used by tests and by components that
// receive no Logger from their caller.
type NoopLogger struct{}

func (NoopLogger) Debug(context.Context, string, ...any)        {}
func (NoopLogger) Info(context.Context, string, ...any)         {}
func (NoopLogger) Warn(context.Context, string, ...any)         {}
func (NoopLogger) Error(context.Context, string, error, ...any) {}
func (l NoopLogger) With(...any) Logger                         { return l }

// NoopMetrics discards every recorded measurement.
type NoopMetrics struct{}

func (NoopMetrics) IncrCounter(string, int64, ...string)    {}
func (NoopMetrics) ObserveDuration(string, float64, ...string) {}
func (NoopMetrics) SetGauge(string, float64, ...string)     {}

// NoopTracer produces spans that record nothing.
type NoopTracer struct{}

func (NoopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) SetAttribute(string, any) {}
func (noopSpan) RecordError(error)        {}
func (noopSpan) End()                     {}
