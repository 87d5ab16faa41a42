package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"go-docrequest/internal/middleware"
	"go-docrequest/internal/model"
	"go-docrequest/internal/pipeline"
	"go-docrequest/pkg/apierror"
)

const maxJSONBody = 1 << 20

func success(status int, data any, meta *model.Meta) pipeline.Response {
	return pipeline.JSON(status, model.APIResponse{
		Status: model.ResponseSuccess,
		Data:   data,
		Meta:   meta,
	})
}

func successMessage(status int, message string) pipeline.Response {
	return pipeline.JSON(status, model.APIResponse{
		Status:  model.ResponseSuccess,
		Message: message,
	})
}

func errorBody(status int, code string, message string) pipeline.Response {
	return pipeline.JSON(status, model.APIResponse{
		Status:  model.ResponseError,
		Code:    code,
		Message: message,
	})
}

// errorResponse maps service errors to the error envelope. Anything it does
// not recognize becomes a generic 500; the cause is logged, never returned.
func errorResponse(r *http.Request, err error) pipeline.Response {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return pipeline.JSON(apiErr.HTTPStatus, model.APIResponse{
			Status:  model.ResponseError,
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
			Errors:  apiErr.Errors,
		}).WithErr(err)
	}

	var resp pipeline.Response
	switch {
	case errors.Is(err, model.ErrAuthMissing), errors.Is(err, model.ErrAuthMalformed),
		errors.Is(err, model.ErrAuthInvalid):
		resp = errorBody(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	case errors.Is(err, model.ErrAuthExpired):
		resp = errorBody(http.StatusUnauthorized, "TOKEN_EXPIRED", "Token expired")
	case errors.Is(err, model.ErrInvalidCredentials):
		resp = errorBody(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
	case errors.Is(err, model.ErrAccountInactive):
		resp = errorBody(http.StatusForbidden, "ACCOUNT_INACTIVE", "Account is inactive")
	case errors.Is(err, model.ErrForbidden):
		resp = errorBody(http.StatusForbidden, "FORBIDDEN", "Access denied")
	case errors.Is(err, model.ErrAccountNotFound):
		resp = errorBody(http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found")
	case errors.Is(err, model.ErrUnknownPrincipal):
		resp = errorBody(http.StatusNotFound, "NOT_FOUND", "Unknown role")
	case errors.Is(err, model.ErrRequestNotFound):
		resp = errorBody(http.StatusNotFound, "REQUEST_NOT_FOUND", "Request not found")
	case errors.Is(err, model.ErrRequestTypeNotFound):
		resp = errorBody(http.StatusNotFound, "REQUEST_TYPE_NOT_FOUND", "Request type not found")
	case errors.Is(err, model.ErrDocumentNotFound):
		resp = errorBody(http.StatusNotFound, "DOCUMENT_NOT_FOUND", "Document not found")
	case errors.Is(err, model.ErrInvalidStatus):
		resp = errorBody(http.StatusBadRequest, "INVALID_STATUS", "Status must be one of: pending, in_progress, completed, rejected")
	case errors.Is(err, model.ErrNoteConflict):
		resp = errorBody(http.StatusConflict, "NOTE_EXISTS", "You have already added a note to this request")
	case errors.Is(err, model.ErrRateLimited):
		resp = errorBody(http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
	case errors.Is(err, model.ErrInvalidInput):
		resp = errorBody(http.StatusBadRequest, "BAD_REQUEST", "Invalid input")
	case errors.Is(err, model.ErrMalformedSchema):
		slog.Error("request type has a malformed schema", "error", err, "request_id", middleware.RequestIDFromContext(r.Context()))
		resp = errorBody(http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected server error")
	case errors.Is(err, model.ErrStorage):
		slog.Error("document storage failed", "error", err, "request_id", middleware.RequestIDFromContext(r.Context()))
		resp = errorBody(http.StatusInternalServerError, "STORAGE_ERROR", "Documents could not be stored")
	default:
		slog.Error("unhandled error", "error", err, "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.RequestIDFromContext(r.Context()))
		resp = errorBody(http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected server error")
	}

	return resp.WithErr(err)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := decoder.Decode(dst); err != nil {
		return apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest)
	}
	return nil
}

// principal reads the caller set by the auth gate.
func principal(r *http.Request) (model.Principal, bool) {
	return middleware.PrincipalFromContext(r.Context())
}

func unauthenticated() pipeline.Response {
	return errorBody(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
}

func parseIntOrDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}
