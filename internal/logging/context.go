package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type ctxKey string

const (
	loggerKey    ctxKey = "logger"
	requestIDKey ctxKey = "requestID"
	userIDKey    ctxKey = "userID"
	traceIDKey   ctxKey = "traceID"
	spanIDKey    ctxKey = "spanID"
)

// New builds the service logger: JSON lines with source locations at the
// requested level. Unknown levels fall back to info.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     ParseLevel(level),
	}))
}

// ParseLevel maps a textual level to its slog equivalent.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithLogger stores the provided logger on the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the request-scoped logger or falls back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// WithRequestID stores a request identifier on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves a previously stored request identifier.
func RequestIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, requestIDKey)
}

// WithUserID records the authenticated user on the context and enriches the
// request logger with it.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil || userID == "" {
		return ctx
	}
	ctx = WithLogger(ctx, FromContext(ctx).With(slog.String("user_id", userID)))
	return withString(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the authenticated user identifier, if any.
func UserIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, userIDKey)
}

func withString(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil || value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}
