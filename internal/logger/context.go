package logger

import (
	"context"

	"go.uber.org/zap"
)

type fieldsKey struct{}

// WithFields returns a context carrying fields, appended to any already present.
// Loggers obtained through For gain them, so request identifiers set by the HTTP
// layer reach every component that logs on behalf of the request.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	prev, _ := ctx.Value(fieldsKey{}).([]zap.Field)
	merged := make([]zap.Field, 0, len(prev)+len(fields))
	merged = append(merged, prev...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

// Fields returns the fields carried by ctx.
func Fields(ctx context.Context) []zap.Field {
	f, _ := ctx.Value(fieldsKey{}).([]zap.Field)
	return f
}

// For returns base enriched with the fields carried by ctx. A nil base yields a no-op logger.
func For(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		return zap.NewNop()
	}
	if f := Fields(ctx); len(f) > 0 {
		return base.With(f...)
	}
	return base
}
