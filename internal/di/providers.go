package di

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/social-realtime-backend/internal/app"
	"github.com/sandeepkv93/social-realtime-backend/internal/config"
	"github.com/sandeepkv93/social-realtime-backend/internal/database"
	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/health"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/handler"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/middleware"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/router"
	"github.com/sandeepkv93/social-realtime-backend/internal/observability"
	"github.com/sandeepkv93/social-realtime-backend/internal/realtime"
	"github.com/sandeepkv93/social-realtime-backend/internal/repository"
	"github.com/sandeepkv93/social-realtime-backend/internal/security"
	"github.com/sandeepkv93/social-realtime-backend/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideDB,
	provideRedisClient,
	provideReadiness,
	provideCloser,
)

var RepositorySet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewSessionRepository,
	repository.NewFriendshipRepository,
	repository.NewConversationRepository,
	repository.NewMessageRepository,
	repository.NewPostRepository,
)

var SecuritySet = wire.NewSet(
	provideJWTManager,
	provideHasher,
	provideCookieManager,
)

var ServiceSet = wire.NewSet(
	provideTokenIssuer,
	provideSessionService,
	service.NewTokenService,
	provideAuthService,
	provideOAuthService,
	service.NewChatService,
	service.NewSocialGraph,
	provideAudienceCache,
	service.NewPresenceService,
	service.NewPostReactionService,
	provideCleanupTask,
)

var RealtimeSet = wire.NewSet(
	provideConnectionRegistry,
	provideActionLock,
	provideHub,
	provideGateway,
)

var HTTPSet = wire.NewSet(
	provideAuthHandler,
	provideSessionHandler,
	provideChatHandler,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

// CLI is the subset of the graph the operator tooling needs.
type CLI struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *gorm.DB
	Sessions *service.SessionService
	Cleanup  *service.SessionCleanupTask
	Hasher   *security.Hasher
}

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	return observability.InitRuntime(context.Background(), cfg, observability.NewLogger(cfg, nil))
}

func provideLogger(cfg *config.Config, rt *observability.Runtime) *slog.Logger {
	logger := observability.NewLogger(cfg, rt.LoggerProvider)
	slog.SetDefault(logger)
	return logger
}

func provideDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

// provideRedisClient returns nil when Redis is disabled; every consumer
// falls back to its in-process implementation.
func provideRedisClient(cfg *config.Config) redis.UniversalClient {
	if !cfg.RedisEnabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedis(client)
	return client
}

func provideReadiness(db *gorm.DB, client redis.UniversalClient) *health.ProbeRunner {
	checkers := []health.Checker{health.DBChecker(db)}
	if client != nil {
		checkers = append(checkers, health.RedisChecker(client))
	}
	return health.NewProbeRunner(2*time.Second, checkers...)
}

func provideCloser(db *gorm.DB, client redis.UniversalClient) app.Closer {
	return func() error {
		var errs []error
		if client != nil {
			errs = append(errs, client.Close())
		}
		if sqlDB, err := db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
		return errors.Join(errs...)
	}
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
}

func provideHasher(cfg *config.Config) *security.Hasher {
	return security.NewHasher(cfg.BcryptCost)
}

func provideCookieManager(cfg *config.Config) *security.CookieManager {
	return security.NewCookieManager(cfg.CookieDomain, cfg.CookieSecure, cfg.CookieSameSite)
}

func provideTokenIssuer(cfg *config.Config, jwtMgr *security.JWTManager) *service.TokenIssuer {
	return service.NewTokenIssuer(jwtMgr, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
}

func provideSessionService(cfg *config.Config, repo repository.SessionRepository, issuer *service.TokenIssuer) *service.SessionService {
	return service.NewSessionService(repo, issuer, cfg.SessionLifetime)
}

func provideAuthService(cfg *config.Config, users repository.UserRepository, sessions *service.SessionService, hasher *security.Hasher) *service.AuthService {
	policy := domain.SessionPolicy{
		MaxConcurrentSessions: cfg.SessionMaxConcurrent,
		SessionTimeout:        cfg.SessionInactivityTimeout,
	}
	return service.NewAuthService(users, sessions, hasher, policy)
}

func provideOAuthService(cfg *config.Config, users repository.UserRepository, auth *service.AuthService) *service.OAuthService {
	if !cfg.GoogleOAuthEnabled() {
		return service.NewOAuthService(nil, users, auth)
	}
	provider := service.NewGoogleOAuthProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	return service.NewOAuthService(provider, users, auth)
}

func provideAudienceCache(cfg *config.Config, client redis.UniversalClient) service.AudienceCacheStore {
	if client == nil {
		return service.NewInMemoryAudienceCacheStore()
	}
	return service.NewRedisAudienceCacheStore(client, cfg.RedisKeyPrefix+":presence_audience")
}

func provideCleanupTask(cfg *config.Config, sessions *service.SessionService, logger *slog.Logger) *service.SessionCleanupTask {
	return service.NewSessionCleanupTask(sessions, logger, cfg.SessionCleanupInterval)
}

func provideConnectionRegistry(cfg *config.Config, client redis.UniversalClient) realtime.ConnectionRegistry {
	if client == nil {
		return realtime.NewInMemoryConnectionRegistry()
	}
	return realtime.NewRedisConnectionRegistry(client, cfg.RedisKeyPrefix+":ws_conns", 0)
}

func provideActionLock(cfg *config.Config, client redis.UniversalClient) realtime.ActionLock {
	if client == nil {
		return realtime.NewInMemoryActionLock()
	}
	return realtime.NewRedisActionLock(client, cfg.RedisKeyPrefix+":action_lock")
}

func provideHub(cfg *config.Config, client redis.UniversalClient, logger *slog.Logger) *realtime.Hub {
	if client == nil {
		return realtime.NewHub(realtime.LocalBroadcaster{}, logger)
	}
	return realtime.NewHub(realtime.NewRedisBroadcaster(client, cfg.RedisKeyPrefix+":ws_frames", logger), logger)
}

func provideGateway(
	cfg *config.Config,
	tokens *service.TokenService,
	chat *service.ChatService,
	presence *service.PresenceService,
	posts *service.PostReactionService,
	registry realtime.ConnectionRegistry,
	locks realtime.ActionLock,
	hub *realtime.Hub,
	logger *slog.Logger,
) *realtime.Gateway {
	opts := realtime.DefaultOptions()
	opts.SendBuffer = cfg.WSSendBuffer
	opts.InboundBuffer = cfg.WSInboundBuffer
	opts.LockGrace = cfg.ActionLockGrace
	opts.AllowedOrigins = cfg.WSAllowedOrigins
	return realtime.NewGateway(tokens, chat, presence, posts, registry, locks, hub, opts, logger)
}

func provideAuthHandler(
	cfg *config.Config,
	auth *service.AuthService,
	oauth *service.OAuthService,
	tokens *service.TokenService,
	cookies *security.CookieManager,
	issuer *service.TokenIssuer,
) *handler.AuthHandler {
	return handler.NewAuthHandler(auth, oauth, tokens, cookies, cfg.OAuthStateSecret, issuer.AccessTTL(), issuer.RefreshTTL(), cfg.IsDevelopment())
}

func provideSessionHandler(cfg *config.Config, sessions *service.SessionService, cookies *security.CookieManager) *handler.SessionHandler {
	return handler.NewSessionHandler(sessions, cookies, cfg.IsDevelopment())
}

func provideChatHandler(cfg *config.Config, chat *service.ChatService) *handler.ChatHandler {
	return handler.NewChatHandler(chat, cfg.IsDevelopment())
}

func provideRouterDependencies(
	cfg *config.Config,
	authH *handler.AuthHandler,
	sessionH *handler.SessionHandler,
	chatH *handler.ChatHandler,
	gateway *realtime.Gateway,
	tokens *service.TokenService,
	client redis.UniversalClient,
	readiness *health.ProbeRunner,
) router.Dependencies {
	dep := router.Dependencies{
		AuthHandler:      authH,
		SessionHandler:   sessionH,
		ChatHandler:      chatH,
		Gateway:          gateway,
		Authenticator:    tokens,
		CORSOrigins:      cfg.CORSAllowedOrigins,
		AuthRateLimitRPM: cfg.AuthRateLimitPerMin,
		APIRateLimitRPM:  cfg.APIRateLimitPerMin,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		Readiness:        readiness,
		EnableOTelHTTP:   cfg.OTELHTTPEnabled,
	}
	if client != nil {
		limiter := middleware.NewRedisFixedWindowLimiter(client, cfg.RedisKeyPrefix+":rl")
		dep.GlobalRateLimiter = middleware.NewDistributedRateLimiter(limiter, cfg.APIRateLimitPerMin, time.Minute, middleware.FailOpen, "api").Middleware()
		dep.AuthRateLimiter = middleware.NewDistributedRateLimiter(limiter, cfg.AuthRateLimitPerMin, time.Minute, middleware.FailClosed, "auth").Middleware()
	}
	return dep
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func provideCLILogger(cfg *config.Config) *slog.Logger {
	return observability.NewLogger(cfg, nil)
}

func provideCLI(cfg *config.Config, logger *slog.Logger, db *gorm.DB, sessions *service.SessionService, cleanup *service.SessionCleanupTask, hasher *security.Hasher) *CLI {
	return &CLI{Config: cfg, Logger: logger, DB: db, Sessions: sessions, Cleanup: cleanup, Hasher: hasher}
}
