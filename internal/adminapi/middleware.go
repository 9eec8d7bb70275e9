package adminapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/variantlab/decider/internal/logger"
)

// RequestLogger scopes the base logger to the request and logs each
// completed request with structured attributes. Handlers downstream
// recover the scoped logger with logger.FromContext, so every line they
// write carries the request id.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLog := base.With(slog.String("request_id", middleware.GetReqID(r.Context())))
			r = r.WithContext(logger.WithContext(r.Context(), reqLog))

			// Wrap the ResponseWriter to capture the status code.
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			// Info for success, Warn for 4xx, Error for 5xx.
			level := slog.LevelInfo
			status := ww.Status()

			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}

			reqLog.Log(r.Context(), level, "HTTP request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", time.Since(start).String(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
