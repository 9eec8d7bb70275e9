package logger

import (
	"context"
	"log/slog"
)

// contextKey is a private type so no other package can collide with this
// package's context value.
type contextKey struct{}

// WithContext returns a context carrying the provided logger. Request
// middleware and interceptors use it to scope loggers per request.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext retrieves the request logger. It never returns nil: absent
// a scoped logger (unit tests, background goroutines) it falls back to
// the global default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
