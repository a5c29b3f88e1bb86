package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/sandeepkv93/social-realtime-backend/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicateEmail       = errors.New("email already registered")
	ErrPostNotFound         = errors.New("post not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	// ErrVersionConflict means the row changed between read and write.
	ErrVersionConflict = errors.New("version conflict")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func record(ctx context.Context, entity, op string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrPostNotFound),
		errors.Is(err, ErrConversationNotFound),
		errors.Is(err, ErrMessageNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrDuplicateEmail):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	observability.RecordRepositoryOperation(ctx, entity, op, outcome)
}
