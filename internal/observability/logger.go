package observability

import (
	"context"

	"go.uber.org/zap"
)

// Logger provides structured logging with context awareness.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
}

// Field represents a structured log field.
type Field = zap.Field

type requestIDKey struct{}

// WithRequestID stores a request ID for later log lines.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request ID stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// ZapLogger adapts a zap logger, adding request_id from the context to every entry.
type ZapLogger struct {
	base *zap.Logger
}

// NewLogger wraps a zap logger.
func NewLogger(base *zap.Logger) *ZapLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &ZapLogger{base: base}
}

func (l *ZapLogger) with(ctx context.Context) *zap.Logger {
	if id, ok := RequestIDFromContext(ctx); ok {
		return l.base.With(zap.String("request_id", id))
	}
	return l.base
}

func (l *ZapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.with(ctx).Debug(msg, fields...)
}

func (l *ZapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.with(ctx).Info(msg, fields...)
}

func (l *ZapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.with(ctx).Warn(msg, fields...)
}

func (l *ZapLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.with(ctx).Error(msg, fields...)
}
