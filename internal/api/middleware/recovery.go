package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/rohitpai/labelforge/internal/api/response"
)

// Recovery turns a handler panic into a 500 envelope. A panic in one request
// must not take down the labeling loop's pollers.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("handler panicked",
					"error", err,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
