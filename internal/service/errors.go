package service

import (
	"errors"

	"github.com/sandeepkv93/social-realtime-backend/internal/repository"
	"github.com/sandeepkv93/social-realtime-backend/internal/security"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionInvalid       = errors.New("invalid or expired session")
	ErrSessionContention    = errors.New("session update contention")
	ErrAccountInactive      = errors.New("account inactive")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidOAuthState    = errors.New("invalid oauth state")
	ErrOAuthDisabled        = errors.New("oauth login disabled")
	ErrOAuthEmailUnverified = errors.New("google email not verified")
	ErrConflict             = errors.New("conflict")
	ErrValidation           = errors.New("validation failed")
	ErrForbidden            = errors.New("forbidden")
	ErrRateLimited          = errors.New("rate limited")
	ErrConversationBlocked  = errors.New("conversation is blocked")
)

// ErrorClass is the client-facing category of an error.
type ErrorClass string

const (
	ClassAuth       ErrorClass = "auth"
	ClassForbidden  ErrorClass = "forbidden"
	ClassNotFound   ErrorClass = "not_found"
	ClassValidation ErrorClass = "validation"
	ClassConflict   ErrorClass = "conflict"
	ClassRateLimit  ErrorClass = "rate_limit"
	ClassServer     ErrorClass = "server"
)

func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, security.ErrInvalidToken),
		errors.Is(err, ErrSessionInvalid),
		errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidOAuthState),
		errors.Is(err, ErrOAuthEmailUnverified):
		return ClassAuth
	case errors.Is(err, ErrForbidden):
		return ClassForbidden
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrPostNotFound),
		errors.Is(err, repository.ErrConversationNotFound),
		errors.Is(err, repository.ErrMessageNotFound):
		return ClassNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConversationBlocked):
		return ClassValidation
	case errors.Is(err, ErrConflict), errors.Is(err, repository.ErrDuplicateEmail):
		return ClassConflict
	case errors.Is(err, ErrRateLimited):
		return ClassRateLimit
	default:
		return ClassServer
	}
}
