package slogx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/petauth/pkg/idx"
)

// HTTPMiddleware writes one access log line per request and puts a request
// scoped logger into the context. Server errors log at Error, auth
// rejections (401, 403, 429) at Warn, everything else at Info.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			reqID := idx.RequestID(r.Header.Get("X-Request-ID"))
			w.Header().Set("X-Request-ID", reqID)

			logger := base.With(
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
			)

			info := &requestInfo{}
			ctx := context.WithValue(r.Context(), requestKey{}, info)
			ctx = WithContext(ctx, logger)

			next.ServeHTTP(rw, r.WithContext(ctx))

			attrs := []any{
				"status", rw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			}
			info.mu.Lock()
			if info.principal != "" {
				attrs = append(attrs, "principal", info.principal, "jti", info.tokenID)
			}
			info.mu.Unlock()

			logger.Log(ctx, levelFor(rw.status), "http_request", attrs...)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusTooManyRequests:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

type responseWriter struct {
	http.ResponseWriter

	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
