package telemetry

import (
	"context"
	"log/slog"
)

// SlogLogger adapts the stdlib structured logger to Logger. This is the one
// ambient concern where the core reaches for the standard library instead of
// a pulled-in framework (see DESIGN.md): log/slog already gives leveled,
// structured, context-aware logging with zero additional dependency weight,
// and the teacher's own ClueLogger is itself a thin wrapper of the same
// shape around a different backend.
type SlogLogger struct {
	base *slog.Logger
	kv   []any
}

// NewSlogLogger wraps base, or slog.Default() if base is nil.
func NewSlogLogger(base *slog.Logger) *SlogLogger {
	if base == nil {
		base = slog.Default()
	}
	return &SlogLogger{base: base}
}

func (l *SlogLogger) Debug(ctx context.Context, msg string, kv ...any) {
	l.base.DebugContext(ctx, msg, append(append([]any{}, l.kv...), kv...)...)
}

func (l *SlogLogger) Info(ctx context.Context, msg string, kv ...any) {
	l.base.InfoContext(ctx, msg, append(append([]any{}, l.kv...), kv...)...)
}

func (l *SlogLogger) Warn(ctx context.Context, msg string, kv ...any) {
	l.base.WarnContext(ctx, msg, append(append([]any{}, l.kv...), kv...)...)
}

func (l *SlogLogger) Error(ctx context.Context, msg string, err error, kv ...any) {
	all := append(append([]any{}, l.kv...), kv...)
	all = append(all, "error", err)
	l.base.ErrorContext(ctx, msg, all...)
}

func (l *SlogLogger) With(kv ...any) Logger {
	return &SlogLogger{base: l.base, kv: append(append([]any{}, l.kv...), kv...)}
}
