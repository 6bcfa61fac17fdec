package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	processIDKey ctxKey = iota
	runIDKey
	triggerKey
)

// WithProcessID returns a context with the process model ID set.
func WithProcessID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, processIDKey, id)
}

// WithRunID returns a context with the simulation run ID set.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithTrigger returns a context recording what started the work
// ("http", "mcp", "cli" or "schedule:<id>").
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey, trigger)
}

// ProcessID extracts the process ID from the context, or "" if absent.
func ProcessID(ctx context.Context) string {
	v, _ := ctx.Value(processIDKey).(string)
	return v
}

// RunID extracts the run ID from the context, or "" if absent.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// Trigger extracts the trigger from the context, or "" if absent.
func Trigger(ctx context.Context) string {
	v, _ := ctx.Value(triggerKey).(string)
	return v
}

// WithIDs sets all three correlation values on the context at once.
func WithIDs(ctx context.Context, processID, runID, trigger string) context.Context {
	ctx = WithProcessID(ctx, processID)
	ctx = WithRunID(ctx, runID)
	ctx = WithTrigger(ctx, trigger)
	return ctx
}

// correlationAttrs returns the non-empty correlation values as attributes.
func correlationAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := ProcessID(ctx); v != "" {
		attrs = append(attrs, slog.String("process_id", v))
	}
	if v := RunID(ctx); v != "" {
		attrs = append(attrs, slog.String("run_id", v))
	}
	if v := Trigger(ctx); v != "" {
		attrs = append(attrs, slog.String("trigger", v))
	}
	return attrs
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range correlationAttrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
