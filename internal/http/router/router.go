package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/health"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/handler"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/middleware"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/response"
)

type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	SessionHandler    *handler.SessionHandler
	ChatHandler       *handler.ChatHandler
	Gateway           http.Handler
	Authenticator     middleware.Authenticator
	CORSOrigins       []string
	AuthRateLimitRPM  int
	APIRateLimitRPM   int
	MaxBodyBytes      int64
	GlobalRateLimiter GlobalRateLimiterFunc
	AuthRateLimiter   AuthRateLimiterFunc
	Readiness         *health.ProbeRunner
	EnableOTelHTTP    bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type AuthRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.RequestID,
		middleware.StructuredRequestLogger,
		middleware.SecurityHeaders,
		middleware.CORS(dep.CORSOrigins),
		middleware.BodyLimit(dep.MaxBodyBytes),
		orInProcess(dep.GlobalRateLimiter, dep.APIRateLimitRPM),
	)

	mountHealth(r, dep.Readiness)
	if dep.Gateway != nil {
		// The gateway authenticates the upgrade itself so browsers can pass ?token=.
		r.Method(http.MethodGet, "/ws", dep.Gateway)
	}

	authLimiter := orInProcess(dep.AuthRateLimiter, dep.AuthRateLimitRPM)
	requireAuth := middleware.AuthMiddleware(dep.Authenticator)
	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/auth", func(auth chi.Router) {
			auth.Group(func(open chi.Router) {
				open.Use(authLimiter)
				open.Get("/google/login", dep.AuthHandler.GoogleLogin)
				open.Get("/google/callback", dep.AuthHandler.GoogleCallback)
				open.Post("/register", dep.AuthHandler.Register)
				open.Post("/login", dep.AuthHandler.Login)
			})
			auth.With(middleware.CSRFMiddleware, authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
			auth.With(middleware.CSRFMiddleware, requireAuth).Post("/logout", dep.AuthHandler.Logout)
		})

		api.Route("/sessions", func(sessions chi.Router) {
			sessions.Use(requireAuth, middleware.CSRFMiddleware)
			sessions.Get("/", dep.SessionHandler.List)
			sessions.Delete("/", dep.SessionHandler.RevokeAll)
			sessions.Delete("/{sessionId}", dep.SessionHandler.Revoke)
			sessions.With(middleware.RequireRole(domain.RoleAdmin)).Get("/stats", dep.SessionHandler.Stats)
		})

		api.With(requireAuth).Get("/conversations/{conversationId}/messages", dep.ChatHandler.ListMessages)
	})

	if !dep.EnableOTelHTTP {
		return r
	}
	return otelhttp.NewHandler(r, "http.server")
}

func orInProcess(limiter func(http.Handler) http.Handler, rpm int) func(http.Handler) http.Handler {
	if limiter != nil {
		return limiter
	}
	return middleware.NewRateLimiter(rpm, time.Minute).Middleware()
}

func mountHealth(r chi.Router, readiness *health.ProbeRunner) {
	r.Get("/health/live", func(w http.ResponseWriter, req *http.Request) {
		response.JSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if readiness == nil {
			response.JSON(w, req, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := readiness.Ready(req.Context())
		if !ready {
			response.Error(w, req, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
			return
		}
		response.JSON(w, req, http.StatusOK, map[string]any{"status": "ready", "checks": results})
	})
}
