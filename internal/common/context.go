package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyRunID     contextKey = "run_id"
	ContextKeyFile      contextKey = "file"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithRunID tags the context with the batch run it belongs to.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(ContextKeyRunID).(string); ok {
		return runID
	}
	return ""
}

// WithFile tags the context with the source file being processed.
func WithFile(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, ContextKeyFile, path)
}

func FileFromContext(ctx context.Context) string {
	if path, ok := ctx.Value(ContextKeyFile).(string); ok {
		return path
	}
	return ""
}

// LogAttrs returns the slog key/value pairs carried by ctx.
func LogAttrs(ctx context.Context) []any {
	var attrs []any
	if v := RunIDFromContext(ctx); v != "" {
		attrs = append(attrs, "run_id", v)
	}
	if v := FileFromContext(ctx); v != "" {
		attrs = append(attrs, "file", v)
	}
	if v := RequestIDFromContext(ctx); v != "" {
		attrs = append(attrs, "req_id", v)
	}
	return attrs
}
