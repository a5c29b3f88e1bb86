package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/social-realtime-backend/internal/http/response"
	"github.com/sandeepkv93/social-realtime-backend/internal/observability"
	"github.com/sandeepkv93/social-realtime-backend/internal/security"
	"github.com/sandeepkv93/social-realtime-backend/internal/service"
)

type SessionHandler struct {
	sessions *service.SessionService
	cookies  *security.CookieManager
	verbose  bool
}

func NewSessionHandler(sessions *service.SessionService, cookies *security.CookieManager, verbose bool) *SessionHandler {
	return &SessionHandler{sessions: sessions, cookies: cookies, verbose: verbose}
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	views, err := h.sessions.ListActiveSessions(r.Context(), p.UserID, p.SessionID)
	if err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	observability.Audit(r, "session.list", "user_id", p.UserID, "count", len(views))
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views})
}

func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionId"))
	if sessionID == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid session id", nil)
		return
	}
	if err := h.sessions.RevokeSession(r.Context(), p.UserID, sessionID); err != nil {
		observability.Audit(r, "session.revoke.single", "user_id", p.UserID, "session_id", sessionID, "outcome", service.Classify(err))
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	if sessionID == p.SessionID {
		h.cookies.ClearTokenCookies(w)
	}
	observability.Audit(r, "session.revoke.single", "user_id", p.UserID, "session_id", sessionID, "outcome", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"status":     "revoked",
		"current":    sessionID == p.SessionID,
	})
}

func (h *SessionHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	n, err := h.sessions.DeactivateAllSessions(r.Context(), p.UserID)
	if err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	h.cookies.ClearTokenCookies(w)
	observability.Audit(r, "session.revoke.all", "user_id", p.UserID, "revoked", n)
	response.JSON(w, r, http.StatusOK, map[string]int{"revoked": n})
}

func (h *SessionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sessions.GetSessionStats(r.Context())
	if err != nil {
		response.ServiceError(w, r, err, h.verbose)
		return
	}
	response.JSON(w, r, http.StatusOK, stats)
}
