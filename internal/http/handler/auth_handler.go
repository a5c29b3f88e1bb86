package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/response"
	"github.com/sandeepkv93/social-realtime-backend/internal/observability"
	"github.com/sandeepkv93/social-realtime-backend/internal/security"
	"github.com/sandeepkv93/social-realtime-backend/internal/service"
)

const oauthStateTTL = 10 * time.Minute

type TokenRefresher interface {
	Refresh(ctx context.Context, raw string) (*service.Principal, string, error)
}

type AuthHandler struct {
	auth        *service.AuthService
	oauth       *service.OAuthService
	tokens      TokenRefresher
	cookies     *security.CookieManager
	stateSecret string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	verbose     bool
}

func NewAuthHandler(
	auth *service.AuthService,
	oauth *service.OAuthService,
	tokens TokenRefresher,
	cookies *security.CookieManager,
	stateSecret string,
	accessTTL, refreshTTL time.Duration,
	verbose bool,
) *AuthHandler {
	return &AuthHandler{
		auth:        auth,
		oauth:       oauth,
		tokens:      tokens,
		cookies:     cookies,
		stateSecret: stateSecret,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		verbose:     verbose,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type authResponse struct {
	User         *domain.User          `json:"user"`
	Session      *service.SessionGrant `json:"session"`
	AccessToken  string                `json:"access_token"`
	RefreshToken string                `json:"refresh_token"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	res, err := h.auth.Register(r.Context(), req, deviceMeta(r))
	if err != nil {
		observability.Audit(r, "auth.register", "outcome", service.Classify(err))
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	observability.Audit(r, "auth.register", "outcome", "success", "user_id", res.User.ID, "session_id", res.Grant.SessionID)
	h.writeLogin(w, r, http.StatusCreated, res)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password, deviceMeta(r))
	if err != nil {
		observability.Audit(r, "auth.login", "outcome", service.Classify(err))
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	observability.Audit(r, "auth.login",
		"outcome", "success",
		"user_id", res.User.ID,
		"session_id", res.Grant.SessionID,
		"reused", res.Grant.IsExistingSession,
		"evicted_session_id", res.Grant.EvictedSessionID,
	)
	h.writeLogin(w, r, http.StatusOK, res)
}

// Refresh accepts the refresh token from its cookie or, for clients that do
// not keep cookies, from the body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := security.GetCookie(r, security.RefreshTokenCookie)
	if raw == "" {
		var req refreshRequest
		if err := decodeJSON(r, &req); err != nil {
			response.ServiceError(w, r, err, h.verbose)
			return
		}
		raw = req.RefreshToken
	}
	if raw == "" {
		response.ServiceError(w, r, service.ErrSessionInvalid, h.verbose)
		return
	}
	p, access, err := h.tokens.Refresh(r.Context(), raw)
	if err != nil {
		observability.Audit(r, "auth.refresh", "outcome", service.Classify(err))
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	h.cookies.SetAccessCookie(w, access, h.accessTTL)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"access_token": access,
		"session_id":   p.SessionID,
		"expires_in":   int(h.accessTTL.Seconds()),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	if err := h.auth.Logout(r.Context(), p.UserID, p.SessionID); err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	h.cookies.ClearTokenCookies(w)
	observability.Audit(r, "auth.logout", "user_id", p.UserID, "session_id", p.SessionID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.oauth.Enabled() {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "google login is not configured", nil)
		return
	}
	state, err := security.NewRandomString(24)
	if err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	h.cookies.SetStateCookie(w, security.SignState(state, h.stateSecret), oauthStateTTL)
	http.Redirect(w, r, h.oauth.LoginURL(state), http.StatusFound)
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.oauth.Enabled() {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "google login is not configured", nil)
		return
	}
	state, ok := security.VerifySignedState(security.GetCookie(r, security.OAuthStateCookie), h.stateSecret)
	if !ok || state == "" || state != r.URL.Query().Get("state") {
		observability.Audit(r, "auth.oauth_callback", "outcome", "invalid_state")
		response.ServiceError(w, r, service.ErrInvalidOAuthState, h.verbose)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "missing authorization code", nil)
		return
	}
	res, err := h.oauth.HandleGoogleCallback(r.Context(), code, deviceMeta(r))
	if err != nil {
		observability.Audit(r, "auth.oauth_callback", "outcome", service.Classify(err))
		if service.Classify(err) == service.ClassServer {
			// provider and exchange failures surface as a failed login
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "google login failed", nil)
			return
		}
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	observability.Audit(r, "auth.oauth_callback", "outcome", "success", "user_id", res.User.ID, "session_id", res.Grant.SessionID)
	h.writeLogin(w, r, http.StatusOK, res)
}

func (h *AuthHandler) writeLogin(w http.ResponseWriter, r *http.Request, status int, res *service.LoginResult) {
	g := res.Grant
	h.cookies.SetTokenCookies(w, g.AccessToken, g.RefreshToken, g.CSRFToken, h.accessTTL, h.refreshTTL)
	response.JSON(w, r, status, authResponse{
		User:         res.User,
		Session:      g,
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
	})
}
