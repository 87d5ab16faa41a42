package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-docrequest/internal/model"
)

// TokenStore holds the tokens of one principal kind.
type TokenStore interface {
	Kind() model.PrincipalKind
	Issue(ctx context.Context, token model.Token) error
	Renew(ctx context.Context, value string, now time.Time, ttl time.Duration) (model.Token, error)
	Revoke(ctx context.Context, value string) (bool, error)
}

type TokenVerifier interface {
	Verify(value string) error
}

// Authenticator resolves a bearer header to a Principal by asking each
// store in order. A successful lookup slides the token's expiry forward.
type Authenticator struct {
	stores   []TokenStore
	verifier TokenVerifier
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthenticator takes the stores in lookup order. verifier may be nil,
// in which case every value goes to the stores.
func NewAuthenticator(verifier TokenVerifier, ttl time.Duration, stores ...TokenStore) *Authenticator {
	return &Authenticator{
		stores:   stores,
		verifier: verifier,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (a *Authenticator) Authenticate(ctx context.Context, header string) (model.Principal, error) {
	value, err := ParseBearer(header)
	if err != nil {
		return model.Principal{}, err
	}

	if a.verifier != nil {
		if err := a.verifier.Verify(value); err != nil {
			return model.Principal{}, model.ErrAuthInvalid
		}
	}

	now := a.now()
	for _, store := range a.stores {
		token, err := store.Renew(ctx, value, now, a.ttl)
		switch {
		case err == nil:
			return model.Principal{Kind: store.Kind(), ID: token.OwnerID}, nil
		case errors.Is(err, model.ErrTokenExpired):
			return model.Principal{}, model.ErrAuthExpired
		case errors.Is(err, model.ErrTokenNotFound):
			continue
		default:
			return model.Principal{}, fmt.Errorf("renew %s token: %w", store.Kind(), err)
		}
	}

	return model.Principal{}, model.ErrAuthInvalid
}

// Revoke deletes value from whichever store holds it.
func (a *Authenticator) Revoke(ctx context.Context, value string) error {
	for _, store := range a.stores {
		removed, err := store.Revoke(ctx, value)
		if err != nil {
			return fmt.Errorf("revoke %s token: %w", store.Kind(), err)
		}
		if removed {
			return nil
		}
	}

	return model.ErrAuthInvalid
}

// ParseBearer extracts the token from "Bearer <token>". The scheme is
// matched case-insensitively and the token may not contain spaces.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", model.ErrAuthMissing
	}

	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", model.ErrAuthMalformed
	}

	value = strings.TrimSpace(value)
	if value == "" || strings.ContainsAny(value, " \t") {
		return "", model.ErrAuthMalformed
	}

	return value, nil
}
