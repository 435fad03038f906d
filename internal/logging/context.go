package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	executionIDKey ctxKey = iota
	actionNameKey
	blogIDKey
)

// WithExecutionID returns a context with the execution ID set.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// WithActionName returns a context with the action name set.
func WithActionName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, actionNameKey, name)
}

// WithBlogID returns a context with the blog ID set.
func WithBlogID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, blogIDKey, id)
}

// ExecutionID extracts the execution ID from the context, or "" if absent.
func ExecutionID(ctx context.Context) string {
	v, _ := ctx.Value(executionIDKey).(string)
	return v
}

// ActionName extracts the action name from the context, or "" if absent.
func ActionName(ctx context.Context) string {
	v, _ := ctx.Value(actionNameKey).(string)
	return v
}

// BlogID extracts the blog ID from the context, or "" if absent.
func BlogID(ctx context.Context) string {
	v, _ := ctx.Value(blogIDKey).(string)
	return v
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if execID := ExecutionID(ctx); execID != "" {
		logger = logger.With(slog.String("execution_id", execID))
	}
	if name := ActionName(ctx); name != "" {
		logger = logger.With(slog.String("action", name))
	}
	if blogID := BlogID(ctx); blogID != "" {
		logger = logger.With(slog.String("blog_id", blogID))
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
	if v := ExecutionID(ctx); v != "" {
		r.AddAttrs(slog.String("execution_id", v))
	}
	if v := ActionName(ctx); v != "" {
		r.AddAttrs(slog.String("action", v))
	}
	if v := BlogID(ctx); v != "" {
		r.AddAttrs(slog.String("blog_id", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
