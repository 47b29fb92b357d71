package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

// ErrPanicRecovered indicates an HTTP handler panicked and was recovered.
var ErrPanicRecovered = errors.New("panic recovered in admin handler")

// statusRecorder wraps http.ResponseWriter to capture the status code
// written, since net/http gives middleware no other way to observe it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs every admin API request with method, path,
// status, and duration.
//
// Log level is Info for 2xx/3xx responses and Warn for 4xx/5xx.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			}

			if rec.status >= 400 {
				logger.LogAttrs(r.Context(), slog.LevelWarn, "admin request completed with error", attrs...)
			} else {
				logger.LogAttrs(r.Context(), slog.LevelInfo, "admin request completed", attrs...)
			}
		})
	}
}

// RecoveryMiddleware recovers from panics in downstream handlers. On
// panic, it logs the panic value and stack trace at Error level and
// responds with 500.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)

					logger.ErrorContext(r.Context(), "panic recovered in admin handler",
						slog.String("path", r.URL.Path),
						slog.Any("panic", v),
						slog.String("stack", string(buf[:n])),
					)

					err := fmt.Errorf("%s: %w", r.URL.Path, ErrPanicRecovered)
					writeError(w, http.StatusInternalServerError, err)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// chain composes middleware in the order given: chain(a, b)(h) runs
// a(b(h)).
func chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}
