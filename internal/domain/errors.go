package domain

import (
	"errors"
	"fmt"
)

var (
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrUnknownProvider     = errors.New("unknown provider")

	ErrTokenEmpty           = errors.New("token is empty")
	ErrTokenTooShort        = errors.New("token is too short")
	ErrIncompleteEncryption = errors.New("incomplete encryption data")
)

// Sentinels matched by TokenError.Is.
var (
	ErrStorageFailed    = errors.New("token storage failed")
	ErrTokenNotFound    = errors.New("token not found")
	ErrDecryptionFailed = errors.New("token decryption failed")
)

type TokenErrorKind string

const (
	StorageFailed    TokenErrorKind = "storage_failed"
	TokenNotFound    TokenErrorKind = "token_not_found"
	DecryptionFailed TokenErrorKind = "decryption_failed"
)

func (k TokenErrorKind) sentinel() error {
	switch k {
	case StorageFailed:
		return ErrStorageFailed
	case TokenNotFound:
		return ErrTokenNotFound
	case DecryptionFailed:
		return ErrDecryptionFailed
	default:
		return nil
	}
}

// TokenError is the closed failure type of the token store. Cause is kept for
// diagnostics; neither field ever carries token material.
type TokenError struct {
	Kind     TokenErrorKind
	Provider Provider
	Cause    error
}

func NewTokenError(kind TokenErrorKind, provider Provider, cause error) *TokenError {
	return &TokenError{Kind: kind, Provider: provider, Cause: cause}
}

func (e *TokenError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Kind.sentinel())
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TokenError) Unwrap() error { return e.Cause }

func (e *TokenError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}
