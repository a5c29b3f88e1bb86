package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/observability"
	"github.com/sandeepkv93/social-realtime-backend/internal/repository"

	"golang.org/x/oauth2"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Picture        string
	EmailVerified  bool
}

type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error)
}

type GoogleOAuthProvider struct {
	cfg         *oauth2.Config
	userInfoURL string
}

func NewGoogleOAuthProvider(clientID, clientSecret, redirectURL string) *GoogleOAuthProvider {
	return &GoogleOAuthProvider{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     googleEndpoint,
		Scopes:       []string{"openid", "email", "profile"},
	}, userInfoURL: googleUserInfoURL}
}

func (p *GoogleOAuthProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *GoogleOAuthProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.cfg.Exchange(ctx, code)
}

func (p *GoogleOAuthProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.cfg.Client(ctx, token).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status: %d", resp.StatusCode)
	}
	var body struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if body.Sub == "" || body.Email == "" {
		return nil, errors.New("missing required userinfo fields")
	}
	return &OAuthUserInfo{
		ProviderUserID: body.Sub,
		Email:          body.Email,
		Name:           body.Name,
		Picture:        body.Picture,
		EmailVerified:  body.EmailVerified,
	}, nil
}

// OAuthService signs users in through Google and then follows the same
// device-match or create path as password login.
type OAuthService struct {
	provider OAuthProvider
	users    repository.UserRepository
	auth     *AuthService
}

func NewOAuthService(provider OAuthProvider, users repository.UserRepository, auth *AuthService) *OAuthService {
	return &OAuthService{provider: provider, users: users, auth: auth}
}

func (s *OAuthService) Enabled() bool {
	return s != nil && s.provider != nil
}

func (s *OAuthService) LoginURL(state string) string {
	return s.provider.AuthCodeURL(state)
}

func (s *OAuthService) HandleGoogleCallback(ctx context.Context, code string, meta DeviceMeta) (*LoginResult, error) {
	if !s.Enabled() {
		return nil, ErrOAuthDisabled
	}
	token, err := s.provider.Exchange(ctx, code)
	if err != nil {
		observability.RecordAuthEvent(ctx, "oauth_callback", "google", classifyOAuthError(err))
		return nil, err
	}
	info, err := s.provider.FetchUserInfo(ctx, token)
	if err != nil {
		observability.RecordAuthEvent(ctx, "oauth_callback", "google", classifyOAuthError(err))
		return nil, err
	}
	if !info.EmailVerified {
		observability.RecordAuthEvent(ctx, "oauth_callback", "google", "email_unverified")
		return nil, ErrOAuthEmailUnverified
	}
	user, err := s.findOrCreate(ctx, info)
	if err != nil {
		return nil, err
	}
	return s.auth.establish(ctx, user, "google", meta)
}

func (s *OAuthService) findOrCreate(ctx context.Context, info *OAuthUserInfo) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(info.Email))
	user, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}
	user = &domain.User{Email: email, Name: info.Name, SessionPolicy: s.auth.policy}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return s.users.FindByEmail(ctx, email)
		}
		return nil, err
	}
	return user, nil
}

func classifyOAuthError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "userinfo status"):
		return "userinfo_status"
	case strings.Contains(msg, "missing required userinfo fields"), strings.Contains(msg, "decode userinfo"):
		return "invalid_userinfo"
	case strings.Contains(msg, "oauth2"):
		return "oauth2_exchange"
	default:
		return "error"
	}
}
