package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"go-docrequest/internal/metrics"
	"go-docrequest/internal/model"
	"go-docrequest/internal/pipeline"
)

const requestIDHeader = "X-Request-ID"

const (
	requestIDContextKey contextKey = "request_id"
	logFieldsContextKey contextKey = "log_fields"
)

// logFields lets inner interceptors report who the caller turned out to be
// without the logging stage reading their contexts.
type logFields struct {
	mu        sync.Mutex
	principal string
}

func annotate(ctx context.Context, p model.Principal) {
	if fields, ok := ctx.Value(logFieldsContextKey).(*logFields); ok {
		fields.mu.Lock()
		fields.principal = p.String()
		fields.mu.Unlock()
	}
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// Logging always calls next. It stamps a request id, times the call and
// logs one line per request at a level chosen by status class.
func Logging(m *metrics.Registry) pipeline.HTTPInterceptor {
	return func(r *http.Request, next pipeline.HTTPHandler) pipeline.Response {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		fields := &logFields{}
		ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
		ctx = context.WithValue(ctx, logFieldsContextKey, fields)

		started := time.Now()
		resp := next(r.WithContext(ctx))
		elapsed := time.Since(started)

		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		m.ObserveRequest(r.Method, route, status, elapsed)

		fields.mu.Lock()
		principal := fields.principal
		fields.mu.Unlock()

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"client_ip", ClientIP(r),
		}
		if principal != "" {
			attrs = append(attrs, "principal", principal)
		}
		if status >= 400 && r.URL.RawQuery != "" {
			attrs = append(attrs, "query", r.URL.RawQuery)
		}
		if body, ok := resp.Body.(model.APIResponse); ok && body.Code != "" {
			attrs = append(attrs, "error_code", body.Code)
		}
		if resp.Err != nil {
			attrs = append(attrs, "error", resp.Err.Error())
		}

		switch {
		case status >= 500:
			slog.Error("request", attrs...)
		case status >= 400:
			slog.Warn("request", attrs...)
		default:
			slog.Info("request", attrs...)
		}

		return resp.WithHeader(requestIDHeader, requestID)
	}
}
