package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-docrequest/internal/model"
	"go-docrequest/internal/pipeline"
	"go-docrequest/internal/service"
)

type AuthService interface {
	Login(ctx context.Context, kind model.PrincipalKind, credentialID string, password string) (model.LoginResult, error)
	Logout(ctx context.Context, principal model.Principal, kind model.PrincipalKind, value string) error
	Me(ctx context.Context, principal model.Principal) (model.PrincipalProfile, error)
}

type AuthHandler struct {
	service AuthService
}

func NewAuthHandler(service AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// Login serves POST /auth/{role}/login.
func (h *AuthHandler) Login(r *http.Request) pipeline.Response {
	kind, err := model.ParsePrincipalKind(chi.URLParam(r, "role"))
	if err != nil {
		return errorResponse(r, err)
	}

	var payload model.LoginRequest
	if err := decodeJSON(r, &payload); err != nil {
		return errorResponse(r, err)
	}

	result, err := h.service.Login(r.Context(), kind, payload.CredentialID, payload.Password)
	if err != nil {
		return errorResponse(r, err)
	}

	return success(http.StatusOK, result, nil)
}

func (h *AuthHandler) Logout(r *http.Request) pipeline.Response {
	caller, ok := principal(r)
	if !ok {
		return unauthenticated()
	}

	kind, err := model.ParsePrincipalKind(chi.URLParam(r, "role"))
	if err != nil {
		return errorResponse(r, err)
	}

	value, err := service.ParseBearer(r.Header.Get("Authorization"))
	if err != nil {
		return errorResponse(r, err)
	}

	if err := h.service.Logout(r.Context(), caller, kind, value); err != nil {
		return errorResponse(r, err)
	}

	return successMessage(http.StatusOK, "Logged out")
}

func (h *AuthHandler) Me(r *http.Request) pipeline.Response {
	caller, ok := principal(r)
	if !ok {
		return unauthenticated()
	}

	profile, err := h.service.Me(r.Context(), caller)
	if err != nil {
		return errorResponse(r, err)
	}

	return success(http.StatusOK, profile, nil)
}
