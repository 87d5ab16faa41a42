package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"go-docrequest/internal/model"
)

// Recovery logs the stack server side and answers with a generic 500.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			slog.Error("panic recovered",
				"error", fmt.Sprintf("%v", recovered),
				"path", r.URL.Path,
				"request_id", r.Header.Get(requestIDHeader),
				"stack", string(debug.Stack()))
			writeJSON(w, http.StatusInternalServerError, model.APIResponse{
				Status:  model.ResponseError,
				Code:    "INTERNAL_ERROR",
				Message: "Unexpected server error",
			})
		}()

		next.ServeHTTP(w, r)
	})
}
