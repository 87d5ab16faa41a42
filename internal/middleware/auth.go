package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go-docrequest/internal/metrics"
	"go-docrequest/internal/model"
	"go-docrequest/internal/pipeline"
)

type Authenticator interface {
	Authenticate(ctx context.Context, header string) (model.Principal, error)
}

type contextKey string

const principalContextKey contextKey = "principal"

func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(model.Principal)
	return p, ok
}

// AuthGate resolves the Authorization header and attaches the principal to
// the request context. Any authentication failure ends the chain with 401.
func AuthGate(auth Authenticator, m *metrics.Registry) pipeline.HTTPInterceptor {
	return func(r *http.Request, next pipeline.HTTPHandler) pipeline.Response {
		principal, err := auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			m.IncAuth(authOutcome(err))
			return authFailure(err)
		}

		m.IncAuth("ok")
		annotate(r.Context(), principal)
		return next(r.WithContext(WithPrincipal(r.Context(), principal)))
	}
}

// RequireKind must run after AuthGate.
func RequireKind(kinds ...model.PrincipalKind) pipeline.HTTPInterceptor {
	allowed := make(map[model.PrincipalKind]struct{}, len(kinds))
	for _, k := range kinds {
		allowed[k] = struct{}{}
	}

	return func(r *http.Request, next pipeline.HTTPHandler) pipeline.Response {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			return reject(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		}

		if _, permitted := allowed[principal.Kind]; !permitted {
			return reject(http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
		}

		return next(r)
	}
}

func authFailure(err error) pipeline.Response {
	switch {
	case errors.Is(err, model.ErrAuthMissing):
		return reject(http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header missing")
	case errors.Is(err, model.ErrAuthMalformed):
		return reject(http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header must be a bearer token")
	case errors.Is(err, model.ErrAuthExpired):
		return reject(http.StatusUnauthorized, "TOKEN_EXPIRED", "Token expired")
	case errors.Is(err, model.ErrAuthInvalid):
		return reject(http.StatusUnauthorized, "TOKEN_INVALID", "Invalid token")
	default:
		slog.Error("authenticate request", "error", err)
		return reject(http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected server error").WithErr(err)
	}
}

func authOutcome(err error) string {
	switch {
	case errors.Is(err, model.ErrAuthMissing):
		return "missing"
	case errors.Is(err, model.ErrAuthMalformed):
		return "malformed"
	case errors.Is(err, model.ErrAuthExpired):
		return "expired"
	case errors.Is(err, model.ErrAuthInvalid):
		return "invalid"
	default:
		return "error"
	}
}
