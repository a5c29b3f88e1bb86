package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/social-realtime-backend/internal/database"
	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/health"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/handler"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/middleware"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/router"
	"github.com/sandeepkv93/social-realtime-backend/internal/realtime"
	"github.com/sandeepkv93/social-realtime-backend/internal/repository"
	"github.com/sandeepkv93/social-realtime-backend/internal/security"
	"github.com/sandeepkv93/social-realtime-backend/internal/service"
)

const (
	testStateSecret = "0123456789abcdef0123456789abcdef"
	testPassword    = "Valid#Pass1234"
	redisPrefix     = "it"
)

type device struct {
	UA string
	IP string
}

var (
	chromeWindows = device{UA: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", IP: "1.1.1.1"}
	safariIPhone  = device{UA: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", IP: "2.2.2.2"}
	firefoxLinux  = device{UA: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", IP: "3.3.3.3"}
	edgeMac       = device{UA: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0", IP: "4.4.4.4"}
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type stackOptions struct {
	db        *gorm.DB
	redis     *redis.Client
	provider  service.OAuthProvider
	lockGrace time.Duration
}

type stack struct {
	db       *gorm.DB
	users    repository.UserRepository
	posts    repository.PostRepository
	sessions *service.SessionService
	hasher   *security.Hasher
	gateway  *realtime.Gateway
	server   *httptest.Server
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:it_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newStack wires the same graph the API binary runs, over sqlite and an
// optional Redis client.
func newStack(t *testing.T, opts stackOptions) *stack {
	t.Helper()
	db := opts.db
	if db == nil {
		db = newDB(t)
	}
	log := discardLogger()

	users := repository.NewUserRepository(db)
	convs := repository.NewConversationRepository(db)
	posts := repository.NewPostRepository(db)
	jwtMgr := security.NewJWTManager("it-issuer", "it-audience", strings.Repeat("a", 32), strings.Repeat("r", 32))
	issuer := service.NewTokenIssuer(jwtMgr, 15*time.Minute, 24*time.Hour)
	sessions := service.NewSessionService(repository.NewSessionRepository(db), issuer, domain.SessionLifetime)
	tokens := service.NewTokenService(jwtMgr, issuer, users, sessions)
	hasher := security.NewHasher(4)
	auth := service.NewAuthService(users, sessions, hasher, domain.SessionPolicy{MaxConcurrentSessions: 3, SessionTimeout: 30 * time.Minute})
	oauth := service.NewOAuthService(opts.provider, users, auth)
	chat := service.NewChatService(users, convs, repository.NewMessageRepository(db))
	graph := service.NewSocialGraph(repository.NewFriendshipRepository(db), convs)
	cookies := security.NewCookieManager("", false, "lax")

	var (
		audience service.AudienceCacheStore = service.NewInMemoryAudienceCacheStore()
		registry realtime.ConnectionRegistry
		locks    realtime.ActionLock
		hub      *realtime.Hub
		checks   = []health.Checker{health.DBChecker(db)}
	)
	if opts.redis != nil {
		audience = service.NewRedisAudienceCacheStore(opts.redis, redisPrefix+":presence_audience")
		registry = realtime.NewRedisConnectionRegistry(opts.redis, redisPrefix+":ws_conns", 0)
		locks = realtime.NewRedisActionLock(opts.redis, redisPrefix+":action_lock")
		hub = realtime.NewHub(realtime.NewRedisBroadcaster(opts.redis, redisPrefix+":ws_frames", log), log)
		checks = append(checks, health.RedisChecker(opts.redis))
	}
	lockGrace := opts.lockGrace
	if lockGrace == 0 {
		lockGrace = time.Minute
	}
	gwOpts := realtime.DefaultOptions()
	gwOpts.LockGrace = lockGrace
	gateway := realtime.NewGateway(
		tokens,
		chat,
		service.NewPresenceService(users, graph, audience),
		service.NewPostReactionService(posts),
		registry,
		locks,
		hub,
		gwOpts,
		log,
	)

	dep := router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(auth, oauth, tokens, cookies, testStateSecret, issuer.AccessTTL(), issuer.RefreshTTL(), false),
		SessionHandler:   handler.NewSessionHandler(sessions, cookies, false),
		ChatHandler:      handler.NewChatHandler(chat, false),
		Gateway:          gateway,
		Authenticator:    tokens,
		CORSOrigins:      []string{"http://localhost:3000"},
		AuthRateLimitRPM: 10000,
		APIRateLimitRPM:  10000,
		Readiness:        health.NewProbeRunner(time.Second, checks...),
	}
	if opts.redis != nil {
		limiter := middleware.NewRedisFixedWindowLimiter(opts.redis, redisPrefix+":rl")
		dep.GlobalRateLimiter = middleware.NewDistributedRateLimiter(limiter, 10000, time.Minute, middleware.FailOpen, "api").Middleware()
		dep.AuthRateLimiter = middleware.NewDistributedRateLimiter(limiter, 10000, time.Minute, middleware.FailClosed, "auth").Middleware()
	}

	s := &stack{
		db:       db,
		users:    users,
		posts:    posts,
		sessions: sessions,
		hasher:   hasher,
		gateway:  gateway,
		server:   httptest.NewServer(router.NewRouter(dep)),
	}
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		_ = gateway.Hub().Run(ctx)
	}()
	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = gateway.Shutdown(shutdownCtx)
		cancel()
		<-hubDone
		s.server.Close()
	})
	return s
}

type call struct {
	method string
	path   string
	token  string
	device device
	body   any
}

func (s *stack) do(t *testing.T, c call) (*http.Response, envelope) {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(c.method, s.server.URL+c.path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.device.UA != "" {
		req.Header.Set("User-Agent", c.device.UA)
	}
	if c.device.IP != "" {
		req.Header.Set("X-Real-IP", c.device.IP)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", c.method, c.path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	var env envelope
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope: %v; raw=%s", err, raw)
		}
	}
	return resp, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data: %v; raw=%s", err, env.Data)
	}
	return v
}

type loginData struct {
	User struct {
		ID   uint        `json:"id"`
		Role domain.Role `json:"role"`
	} `json:"user"`
	Session struct {
		SessionID         string `json:"session_id"`
		IsExistingSession bool   `json:"is_existing_session"`
	} `json:"session"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type sessionView struct {
	SessionID string `json:"session_id"`
	IsCurrent bool   `json:"is_current"`
}

func (s *stack) register(t *testing.T, email string, d device) loginData {
	t.Helper()
	resp, env := s.do(t, call{
		method: http.MethodPost,
		path:   "/api/v1/auth/register",
		device: d,
		body:   map[string]string{"email": email, "name": strings.Split(email, "@")[0], "password": testPassword},
	})
	if resp.StatusCode != http.StatusCreated || !env.Success {
		t.Fatalf("register %s: status=%d error=%+v", email, resp.StatusCode, env.Error)
	}
	return decodeData[loginData](t, env)
}

func (s *stack) login(t *testing.T, email string, d device) loginData {
	t.Helper()
	resp, env := s.do(t, call{
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		device: d,
		body:   map[string]string{"email": email, "password": testPassword},
	})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("login %s: status=%d error=%+v", email, resp.StatusCode, env.Error)
	}
	return decodeData[loginData](t, env)
}

func (s *stack) listSessions(t *testing.T, token string) []sessionView {
	t.Helper()
	resp, env := s.do(t, call{method: http.MethodGet, path: "/api/v1/sessions", token: token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list sessions: status=%d error=%+v", resp.StatusCode, env.Error)
	}
	return decodeData[struct {
		Sessions []sessionView `json:"sessions"`
	}](t, env).Sessions
}

// seedFriends creates accepted friends, each owning one post, who can log in
// with testPassword.
func (s *stack) seedFriends(t *testing.T, emails ...string) []*domain.User {
	t.Helper()
	hash, err := s.hasher.Hash([]byte(testPassword))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	seed := make([]database.SeedUser, 0, len(emails))
	for _, e := range emails {
		seed = append(seed, database.SeedUser{Email: e, Name: strings.Split(e, "@")[0], PasswordHash: hash})
	}
	if _, err := database.SeedDemo(s.db, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	out := make([]*domain.User, 0, len(emails))
	for _, e := range emails {
		u, err := s.users.FindByEmail(context.Background(), e)
		if err != nil {
			t.Fatalf("find %s: %v", e, err)
		}
		out = append(out, u)
	}
	return out
}

func (s *stack) postOf(t *testing.T, authorID uint) domain.Post {
	t.Helper()
	var p domain.Post
	if err := s.db.Where("author_id = ?", authorID).First(&p).Error; err != nil {
		t.Fatalf("find post of %d: %v", authorID, err)
	}
	return p
}

func (s *stack) wsURL(token string) string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws?token=" + token
}

func (s *stack) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL(token), nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, status)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event, requestID string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteJSON(realtime.Envelope{Event: event, Data: raw, RequestID: requestID}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) realtime.Envelope {
	t.Helper()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var env realtime.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Event == event {
			return env
		}
	}
}

// settle round-trips a ping so every frame sent before it has been handled.
func settle(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, realtime.EventPing, "settle", struct{}{})
	readUntil(t, conn, realtime.EventPong)
}

func frameData[T any](t *testing.T, env realtime.Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode %s: %v; raw=%s", env.Event, err, env.Data)
	}
	return v
}
