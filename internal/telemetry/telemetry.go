// Package telemetry defines the logging, metrics, and tracing interfaces
// shared by every component so they depend on abstractions rather than a
// concrete backend. A noop set satisfies tests; an OpenTelemetry-backed set
// (otel.go) satisfies production wiring.
package telemetry

import "context"

type (
	// Logger emits structured, leveled log lines scoped to a component.
	Logger interface {
		Debug(ctx context.Context, msg string, kv ...any)
		Info(ctx context.Context, msg string, kv ...any)
		Warn(ctx context.Context, msg string, kv ...any)
		Error(ctx context.Context, msg string, err error, kv ...any)
		// With returns a Logger that prepends the given key-value pairs to
		// every subsequent call.
		With(kv ...any) Logger
	}

	// Metrics records counters and histograms for pipeline operations.
	Metrics interface {
		IncrCounter(name string, value int64, tags ...string)
		ObserveDuration(name string, seconds float64, tags ...string)
		SetGauge(name string, value float64, tags ...string)
	}

	// Tracer creates spans around bounded units of work (RPC calls, tool
	// handler invocations, step execution).
	Tracer interface {
		StartSpan(ctx context.Context, name string) (context.Context, Span)
	}

	// Span is a single unit of traced work. End must be called exactly once.
	Span interface {
		SetAttribute(key string, value any)
		RecordError(err error)
		End()
	}
)
