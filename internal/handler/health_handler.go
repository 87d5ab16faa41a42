package handler

import (
	"context"
	"net/http"
	"time"

	"go-docrequest/internal/model"
	"go-docrequest/internal/pipeline"
)

const healthTimeout = 3 * time.Second

type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthHandler struct {
	checks []HealthCheck
}

func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health reports each dependency as "ok" or "unavailable" and answers 503
// when any of them is down. Error text stays in the server log.
func (h *HealthHandler) Health(r *http.Request) pipeline.Response {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	components := make(map[string]string, len(h.checks))
	status := http.StatusOK
	var firstErr error

	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			components[check.Name] = "unavailable"
			status = http.StatusServiceUnavailable
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		components[check.Name] = "ok"
	}

	body := model.APIResponse{Status: model.ResponseSuccess, Data: components}
	if status != http.StatusOK {
		body.Status = model.ResponseError
		body.Code = "UNHEALTHY"
		body.Message = "One or more dependencies are unavailable"
	}

	return pipeline.JSON(status, body).WithErr(firstErr)
}
