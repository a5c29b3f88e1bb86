package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/social-realtime-backend/internal/database"
	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/middleware"
	"github.com/sandeepkv93/social-realtime-backend/internal/repository"
	"github.com/sandeepkv93/social-realtime-backend/internal/security"
	"github.com/sandeepkv93/social-realtime-backend/internal/service"
)

const (
	testUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 Version/17.0 Safari/605.1.15"
	testRemoteAddr  = "203.0.113.7:51000"
	testStateSecret = "state-secret-for-tests-0123456789"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type handlerFixture struct {
	db       *gorm.DB
	users    repository.UserRepository
	chat     *service.ChatService
	sessions *service.SessionService
	router   http.Handler
}

func newHandlerDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:h_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
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

func newHandlerFixture(t *testing.T, provider service.OAuthProvider) *handlerFixture {
	t.Helper()
	db := newHandlerDBForTest(t)
	users := repository.NewUserRepository(db)
	jwtMgr := security.NewJWTManager("test-issuer", "test-audience", "abcdefghijklmnopqrstuvwxyz123456", "abcdefghijklmnopqrstuvwxyz654321")
	issuer := service.NewTokenIssuer(jwtMgr, 15*time.Minute, 24*time.Hour)
	sessions := service.NewSessionService(repository.NewSessionRepository(db), issuer, domain.SessionLifetime)
	tokens := service.NewTokenService(jwtMgr, issuer, users, sessions)
	auth := service.NewAuthService(users, sessions, security.NewHasher(4), domain.DefaultSessionPolicy())
	oauth := service.NewOAuthService(provider, users, auth)
	chat := service.NewChatService(users, repository.NewConversationRepository(db), repository.NewMessageRepository(db))
	cookies := security.NewCookieManager("", false, "lax")

	authH := NewAuthHandler(auth, oauth, tokens, cookies, testStateSecret, issuer.AccessTTL(), issuer.RefreshTTL(), false)
	sessionH := NewSessionHandler(sessions, cookies, false)
	chatH := NewChatHandler(chat, false)

	r := chi.NewRouter()
	r.Post("/auth/register", authH.Register)
	r.Post("/auth/login", authH.Login)
	r.Post("/auth/refresh", authH.Refresh)
	r.Get("/auth/google/login", authH.GoogleLogin)
	r.Get("/auth/google/callback", authH.GoogleCallback)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(tokens))
		r.Post("/auth/logout", authH.Logout)
		r.Get("/sessions", sessionH.List)
		r.Delete("/sessions", sessionH.RevokeAll)
		r.Delete("/sessions/{sessionId}", sessionH.Revoke)
		r.With(middleware.RequireRole(domain.RoleAdmin)).Get("/sessions/stats", sessionH.Stats)
		r.Get("/conversations/{conversationId}/messages", chatH.ListMessages)
	})

	return &handlerFixture{db: db, users: users, chat: chat, sessions: sessions, router: r}
}

type call struct {
	method  string
	path    string
	body    string
	bearer  string
	ua      string
	cookies []*http.Cookie
}

func (f *handlerFixture) do(t *testing.T, c call) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	req.RemoteAddr = testRemoteAddr
	ua := c.ua
	if ua == "" {
		ua = testUserAgent
	}
	req.Header.Set("User-Agent", ua)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	var env envelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v body=%s", err, rr.Body.String())
		}
	}
	return rr, env
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

func (f *handlerFixture) register(t *testing.T, email string) loginData {
	t.Helper()
	rr, env := f.do(t, call{
		method: http.MethodPost,
		path:   "/auth/register",
		body:   fmt.Sprintf(`{"email":%q,"name":"Test","password":"correct-horse"}`, email),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, rr.Code, rr.Body.String())
	}
	return decodeData[loginData](t, env)
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
	return out
}

func cookieNamed(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
