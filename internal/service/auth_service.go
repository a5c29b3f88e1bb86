package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/observability"
	"github.com/sandeepkv93/social-realtime-backend/internal/repository"
	"github.com/sandeepkv93/social-realtime-backend/internal/security"
)

const minPasswordLength = 8

type RegisterInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginResult struct {
	User  *domain.User
	Grant *SessionGrant
}

type AuthService struct {
	users    repository.UserRepository
	sessions *SessionService
	hasher   *security.Hasher
	policy   domain.SessionPolicy
}

func NewAuthService(users repository.UserRepository, sessions *SessionService, hasher *security.Hasher, policy domain.SessionPolicy) *AuthService {
	return &AuthService{users: users, sessions: sessions, hasher: hasher, policy: policy.Normalized()}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta DeviceMeta) (*LoginResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	hash, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Email:         email,
		Name:          strings.TrimSpace(in.Name),
		PasswordHash:  hash,
		SessionPolicy: s.policy,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			observability.RecordAuthEvent(ctx, "register", "local", "conflict")
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		observability.RecordAuthEvent(ctx, "register", "local", "error")
		return nil, err
	}
	grant, err := s.sessions.CreateSession(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}
	observability.RecordAuthEvent(ctx, "register", "local", "success")
	return &LoginResult{User: user, Grant: grant}, nil
}

// Login verifies credentials and then either reuses the session already
// bound to this device or opens a new one.
func (s *AuthService) Login(ctx context.Context, email, password string, meta DeviceMeta) (*LoginResult, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		observability.RecordAuthEvent(ctx, "login", "local", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, normalized)
	if errors.Is(err, repository.ErrUserNotFound) {
		observability.RecordAuthEvent(ctx, "login", "local", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == "" || s.hasher.Compare(user.PasswordHash, []byte(password)) != nil {
		observability.RecordAuthEvent(ctx, "login", "local", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	return s.establish(ctx, user, "local", meta)
}

func (s *AuthService) establish(ctx context.Context, user *domain.User, provider string, meta DeviceMeta) (*LoginResult, error) {
	if !user.IsActive() {
		observability.RecordAuthEvent(ctx, "login", provider, "inactive")
		return nil, ErrAccountInactive
	}
	grant, err := s.sessions.OpenSession(ctx, user.ID, meta)
	if err != nil {
		observability.RecordAuthEvent(ctx, "login", provider, "error")
		return nil, err
	}
	outcome := "success"
	if grant.IsExistingSession {
		outcome = "reused"
	}
	observability.RecordAuthEvent(ctx, "login", provider, outcome)
	return &LoginResult{User: user, Grant: grant}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID uint, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.DeactivateSession(ctx, userID, sessionID); err != nil {
		return err
	}
	observability.RecordAuthEvent(ctx, "logout", "local", "success")
	return nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Address != strings.TrimSpace(raw) {
		return "", fmt.Errorf("%w: invalid email", ErrValidation)
	}
	return strings.ToLower(addr.Address), nil
}
