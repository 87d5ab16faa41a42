package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const timeoutBody = `{"status":"error","code":"REQUEST_TIMEOUT","message":"request timed out"}`

const defaultTimeout = 30 * time.Second

// Timeout buffers the response and answers 503 with a JSON body when the
// handler runs past the limit.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return func(next http.Handler) http.Handler {
		buffered := http.TimeoutHandler(next, timeout, timeoutBody)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The handler's own Content-Type replaces this one on success.
			w.Header().Set("Content-Type", "application/json")
			buffered.ServeHTTP(w, r)
		})
	}
}

// StreamDeadline bounds a streamed response without buffering it: the
// request context gets the deadline and so does the connection write.
func StreamDeadline(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			rc := http.NewResponseController(w)
			if err := rc.SetWriteDeadline(time.Now().Add(timeout)); err == nil {
				defer func() { _ = rc.SetWriteDeadline(time.Time{}) }()
			} else if !errors.Is(err, http.ErrNotSupported) {
				slog.Warn("set write deadline", "error", err, "path", r.URL.Path)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
