package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/observability"
	"github.com/sandeepkv93/social-realtime-backend/internal/repository"
	"github.com/sandeepkv93/social-realtime-backend/internal/security"
)

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	CSRFToken    string
}

// TokenIssuer mints access and refresh tokens bound to a session.
type TokenIssuer struct {
	jwtMgr     *security.JWTManager
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenIssuer(jwtMgr *security.JWTManager, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{jwtMgr: jwtMgr, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func (i *TokenIssuer) Mint(userID uint, role domain.Role, sessionID string) (TokenPair, error) {
	access, err := i.jwtMgr.SignAccessToken(userID, string(role), sessionID, i.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.jwtMgr.SignRefreshToken(userID, sessionID, i.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	csrf, err := security.NewCSRFToken()
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, CSRFToken: csrf}, nil
}

func (i *TokenIssuer) MintAccess(userID uint, role domain.Role, sessionID string) (string, error) {
	return i.jwtMgr.SignAccessToken(userID, string(role), sessionID, i.accessTTL)
}

func (i *TokenIssuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *TokenIssuer) RefreshTTL() time.Duration { return i.refreshTTL }

// Principal is the authenticated caller of a request or connection.
type Principal struct {
	UserID    uint
	Role      domain.Role
	SessionID string
	User      *domain.User
}

type sessionValidator interface {
	ValidateSession(ctx context.Context, userID uint, sessionID string) (bool, error)
}

// TokenService turns a raw credential into a Principal. Signature and expiry
// are checked first; session liveness only when the token names a session.
type TokenService struct {
	jwtMgr   *security.JWTManager
	issuer   *TokenIssuer
	users    repository.UserRepository
	sessions sessionValidator
}

func NewTokenService(jwtMgr *security.JWTManager, issuer *TokenIssuer, users repository.UserRepository, sessions *SessionService) *TokenService {
	return &TokenService{jwtMgr: jwtMgr, issuer: issuer, users: users, sessions: sessions}
}

func (s *TokenService) Authenticate(ctx context.Context, raw string) (*Principal, error) {
	claims, err := s.jwtMgr.ParseAccessToken(raw)
	if err != nil {
		observability.RecordTokenValidation(ctx, "invalid_token")
		return nil, err
	}
	p, err := s.principal(ctx, claims)
	if err != nil {
		observability.RecordTokenValidation(ctx, outcomeFor(err))
		return nil, err
	}
	observability.RecordTokenValidation(ctx, "success")
	return p, nil
}

// Refresh validates a refresh token and its session, then mints a new
// access token for the same session.
func (s *TokenService) Refresh(ctx context.Context, raw string) (*Principal, string, error) {
	claims, err := s.jwtMgr.ParseRefreshToken(raw)
	if err != nil {
		observability.RecordAuthEvent(ctx, "refresh", "local", "invalid_token")
		return nil, "", err
	}
	p, err := s.principal(ctx, claims)
	if err != nil {
		observability.RecordAuthEvent(ctx, "refresh", "local", outcomeFor(err))
		return nil, "", err
	}
	access, err := s.issuer.MintAccess(p.UserID, p.Role, p.SessionID)
	if err != nil {
		return nil, "", fmt.Errorf("mint access token: %w", err)
	}
	observability.RecordAuthEvent(ctx, "refresh", "local", "success")
	return p, access, nil
}

func (s *TokenService) principal(ctx context.Context, claims *security.Claims) (*Principal, error) {
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return nil, ErrAccountInactive
	}
	if claims.SessionID != "" {
		ok, err := s.sessions.ValidateSession(ctx, userID, claims.SessionID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrSessionInvalid
		}
	}
	return &Principal{UserID: userID, Role: user.Role, SessionID: claims.SessionID, User: user}, nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrSessionInvalid):
		return "invalid_session"
	case errors.Is(err, ErrAccountInactive):
		return "inactive"
	case errors.Is(err, security.ErrInvalidToken):
		return "invalid_token"
	default:
		return "error"
	}
}
