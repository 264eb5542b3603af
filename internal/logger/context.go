package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	TraceIDKey   contextKey = "trace_id"
	SessionIDKey contextKey = "session_id"
	JobIDKey     contextKey = "job_id"
)

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}

func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, JobIDKey, id)
}

func GetJobID(ctx context.Context) string {
	if id, ok := ctx.Value(JobIDKey).(string); ok {
		return id
	}
	return ""
}

// Attrs returns the correlation ids present in ctx as slog attributes.
func Attrs(ctx context.Context) []any {
	var attrs []any
	if id := GetTraceID(ctx); id != "" {
		attrs = append(attrs, slog.String(string(TraceIDKey), id))
	}
	if id := GetSessionID(ctx); id != "" {
		attrs = append(attrs, slog.String(string(SessionIDKey), id))
	}
	if id := GetJobID(ctx); id != "" {
		attrs = append(attrs, slog.String(string(JobIDKey), id))
	}
	return attrs
}
