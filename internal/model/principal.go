package model

import (
	"fmt"
	"strings"
	"time"
)

type PrincipalKind string

const (
	KindAdmin   PrincipalKind = "admin"
	KindStudent PrincipalKind = "student"
)

// ParsePrincipalKind accepts the route spelling of a role.
func ParsePrincipalKind(raw string) (PrincipalKind, error) {
	switch PrincipalKind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindAdmin:
		return KindAdmin, nil
	case KindStudent:
		return KindStudent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPrincipal, raw)
	}
}

// Principal is an authenticated caller. It is only ever produced by the
// authenticator and is never persisted as a whole.
type Principal struct {
	Kind PrincipalKind `json:"kind"`
	ID   string        `json:"id"`
}

func (p Principal) IsAdmin() bool   { return p.Kind == KindAdmin }
func (p Principal) IsStudent() bool { return p.Kind == KindStudent }

func (p Principal) String() string {
	return string(p.Kind) + ":" + p.ID
}

type Token struct {
	Value     string        `json:"-"`
	OwnerKind PrincipalKind `json:"owner_kind"`
	OwnerID   string        `json:"owner_id"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Account is the read-only view of a principal record kept by the
// registration subsystem.
type Account struct {
	ID           string
	Kind         PrincipalKind
	CredentialID string
	PasswordHash string
	DisplayName  string
	Email        string
	IsActive     bool
	CreatedAt    time.Time
}

type LoginRequest struct {
	CredentialID string `json:"credential_id"`
	Password     string `json:"password"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Principal Principal `json:"principal"`
}

type PrincipalProfile struct {
	Principal
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}
