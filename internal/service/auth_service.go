package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-docrequest/internal/model"
	"go-docrequest/pkg/apierror"
)

const bcryptCost = 12

// AccountStore is the read side of the principal registry for one kind.
type AccountStore interface {
	Kind() model.PrincipalKind
	FindByCredential(ctx context.Context, credentialID string) (model.Account, error)
	FindByID(ctx context.Context, id string) (model.Account, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, account model.Account) error
}

type AuthService struct {
	accounts map[model.PrincipalKind]AccountStore
	tokens   map[model.PrincipalKind]TokenStore
	signer   *TokenSigner
	ttl      time.Duration
	now      func() time.Time
}

func NewAuthService(signer *TokenSigner, ttl time.Duration, accounts []AccountStore, tokens []TokenStore) (*AuthService, error) {
	if signer == nil {
		return nil, errors.New("token signer is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	s := &AuthService{
		accounts: make(map[model.PrincipalKind]AccountStore, len(accounts)),
		tokens:   make(map[model.PrincipalKind]TokenStore, len(tokens)),
		signer:   signer,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, a := range accounts {
		s.accounts[a.Kind()] = a
	}
	for _, t := range tokens {
		s.tokens[t.Kind()] = t
	}

	return s, nil
}

// Login checks the credentials and issues a fresh token, revoking any token
// the account held before.
func (s *AuthService) Login(ctx context.Context, kind model.PrincipalKind, credentialID string, password string) (model.LoginResult, error) {
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" || password == "" {
		return model.LoginResult{}, apierror.BadRequest("credential_id and password are required", "")
	}

	accounts, tokens, err := s.storesFor(kind)
	if err != nil {
		return model.LoginResult{}, err
	}

	account, err := accounts.FindByCredential(ctx, credentialID)
	if err != nil {
		return model.LoginResult{}, err
	}
	if !account.IsActive {
		return model.LoginResult{}, model.ErrAccountInactive
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return model.LoginResult{}, model.ErrInvalidCredentials
	}

	now := s.now()
	value, err := s.signer.Mint(now)
	if err != nil {
		return model.LoginResult{}, err
	}

	token := model.Token{
		Value:     value,
		OwnerKind: kind,
		OwnerID:   account.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := tokens.Issue(ctx, token); err != nil {
		return model.LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	return model.LoginResult{
		Token:     value,
		ExpiresAt: token.ExpiresAt,
		Principal: model.Principal{Kind: kind, ID: account.ID},
	}, nil
}

// Logout revokes the presented token. The role named by the caller must
// match the authenticated principal.
func (s *AuthService) Logout(ctx context.Context, principal model.Principal, kind model.PrincipalKind, value string) error {
	if principal.Kind != kind {
		return model.ErrForbidden
	}

	_, tokens, err := s.storesFor(kind)
	if err != nil {
		return err
	}

	removed, err := tokens.Revoke(ctx, value)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if !removed {
		return model.ErrAuthInvalid
	}
	return nil
}

func (s *AuthService) Me(ctx context.Context, principal model.Principal) (model.PrincipalProfile, error) {
	accounts, _, err := s.storesFor(principal.Kind)
	if err != nil {
		return model.PrincipalProfile{}, err
	}

	account, err := accounts.FindByID(ctx, principal.ID)
	if err != nil {
		return model.PrincipalProfile{}, err
	}

	return model.PrincipalProfile{
		Principal:   principal,
		DisplayName: account.DisplayName,
		Email:       account.Email,
	}, nil
}

// EnsureBootstrapAdmin creates the first admin account when none exist.
// It does nothing when password is empty or an admin is already present.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, credentialID string, password string) error {
	if strings.TrimSpace(credentialID) == "" || password == "" {
		return nil
	}

	accounts, ok := s.accounts[model.KindAdmin]
	if !ok {
		return fmt.Errorf("%w: %q", model.ErrUnknownPrincipal, model.KindAdmin)
	}

	count, err := accounts.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	account := model.Account{
		ID:           uuid.NewString(),
		Kind:         model.KindAdmin,
		CredentialID: strings.TrimSpace(credentialID),
		PasswordHash: string(hash),
		DisplayName:  "Administrator",
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	if err := accounts.Create(ctx, account); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	slog.Info("bootstrap admin created", "credential_id", account.CredentialID)
	return nil
}

func (s *AuthService) storesFor(kind model.PrincipalKind) (AccountStore, TokenStore, error) {
	accounts, ok := s.accounts[kind]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", model.ErrUnknownPrincipal, kind)
	}
	tokens, ok := s.tokens[kind]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", model.ErrUnknownPrincipal, kind)
	}

	return accounts, tokens, nil
}
