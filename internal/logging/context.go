// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Correlation identifies who and which conversation a log line belongs to.
type Correlation struct {
	TenantID       string
	UserID         string
	ConversationID string
}

type correlationCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// WithCorrelation adds correlation data to ctx. Empty fields are kept from any
// correlation already present, so callers can refine it as a message is resolved.
func WithCorrelation(ctx context.Context, c Correlation) context.Context {
	if prev, ok := ctx.Value(correlationCtxKey{}).(Correlation); ok {
		if c.TenantID == "" {
			c.TenantID = prev.TenantID
		}
		if c.UserID == "" {
			c.UserID = prev.UserID
		}
		if c.ConversationID == "" {
			c.ConversationID = prev.ConversationID
		}
	}
	return context.WithValue(ctx, correlationCtxKey{}, c)
}

// CorrelationFromContext returns the correlation stored on ctx, if any.
func CorrelationFromContext(ctx context.Context) (Correlation, bool) {
	c, ok := ctx.Value(correlationCtxKey{}).(Correlation)
	return c, ok
}

// WithRequestID adds a request id (HTTP request or inbound job id) to ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts the request id from ctx.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if c, ok := CorrelationFromContext(ctx); ok {
		if c.TenantID != "" {
			fields = append(fields, zap.String("tenant.id", c.TenantID))
		}
		if c.UserID != "" {
			fields = append(fields, zap.String("user.id", c.UserID))
		}
		if c.ConversationID != "" {
			fields = append(fields, zap.String("conversation.id", c.ConversationID))
		}
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context, or a nop logger if none is set.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
