package middleware

import (
	"context"
	"net/http"
	"slices"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/response"
	"github.com/sandeepkv93/social-realtime-backend/internal/observability"
	"github.com/sandeepkv93/social-realtime-backend/internal/security"
	"github.com/sandeepkv93/social-realtime-backend/internal/service"
)

type contextKey string

const (
	PrincipalContextKey contextKey = "principal"
)

type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*service.Principal, error)
}

// AuthMiddleware resolves the caller from the access token cookie or a
// bearer header. Every failure gets the same 401 so callers cannot tell a
// revoked session from a forged token.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := security.GetCookie(r, security.AccessTokenCookie)
			if raw == "" {
				raw = security.BearerToken(r)
			}
			if raw == "" {
				unauthorized(w, r)
				return
			}
			principal, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				observability.Audit(r, "auth.rejected", "reason", service.Classify(err))
				unauthorized(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func PrincipalFromContext(ctx context.Context) (*service.Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*service.Principal)
	return p, ok && p != nil
}

// RequireRole admits principals holding one of the roles.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w, r)
				return
			}
			if !slices.Contains(roles, p.Role) {
				observability.Audit(r, "auth.forbidden", "user_id", p.UserID, "role", p.Role)
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired session", nil)
}
