package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-docrequest/internal/model"
)

const defaultIssuer = "docrequest"

// TokenSigner mints bearer token values. A value carries no identity and no
// expiry; both live in the token store. The signature only lets forged
// values be rejected without a database round trip.
type TokenSigner struct {
	secret []byte
	issuer string
}

func NewTokenSigner(secret string, issuer string) (*TokenSigner, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if issuer == "" {
		issuer = defaultIssuer
	}

	return &TokenSigner{secret: []byte(secret), issuer: issuer}, nil
}

func (s *TokenSigner) Mint(now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"jti": uuid.NewString(),
		"iss": s.issuer,
		"iat": now.Unix(),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and issuer only.
func (s *TokenSigner) Verify(value string) error {
	parsed, err := jwt.Parse(value, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return model.ErrAuthInvalid
	}

	return nil
}
