package model

import "errors"

var (
	// Authentication errors
	ErrAuthMissing   = errors.New("authorization header missing")
	ErrAuthMalformed = errors.New("authorization header malformed")
	ErrAuthExpired   = errors.New("token expired")
	ErrAuthInvalid   = errors.New("token invalid")

	// Token store results
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired in store")

	// Account related errors
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountInactive    = errors.New("account inactive")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownPrincipal   = errors.New("unknown principal kind")

	// Permission/Access related errors
	ErrForbidden = errors.New("forbidden")

	// Rate limiting
	ErrRateLimited = errors.New("rate limit exceeded")

	// Request related errors
	ErrRequestNotFound     = errors.New("request not found")
	ErrRequestTypeNotFound = errors.New("request type not found")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrMalformedSchema     = errors.New("malformed requirement schema")

	// Note related errors
	ErrNoteConflict = errors.New("note already exists for this staff member")

	// Infrastructure errors
	ErrStorage = errors.New("storage failure")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
