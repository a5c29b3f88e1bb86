package di

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/social-realtime-backend/internal/config"
	"github.com/sandeepkv93/social-realtime-backend/internal/realtime"
	"github.com/sandeepkv93/social-realtime-backend/internal/service"
)

func TestProvideHTTPServer(t *testing.T) {
	cfg := &config.Config{HTTPPort: "9999"}
	srv := provideHTTPServer(cfg, nil)
	if srv.Addr != ":9999" {
		t.Fatalf("unexpected addr: %s", srv.Addr)
	}
	if srv.ReadHeaderTimeout != 10*time.Second {
		t.Fatalf("unexpected read header timeout: %v", srv.ReadHeaderTimeout)
	}
	if srv.ReadTimeout != 0 || srv.WriteTimeout != 0 {
		t.Fatal("long-lived websocket connections must not carry server read/write timeouts")
	}
}

func TestProvideRouterDependencies(t *testing.T) {
	cfg := &config.Config{CORSAllowedOrigins: []string{"http://localhost:3000"}, AuthRateLimitPerMin: 10, APIRateLimitPerMin: 100, MaxBodyBytes: 2048}
	dep := provideRouterDependencies(cfg, nil, nil, nil, nil, nil, nil, nil)
	if dep.AuthRateLimitRPM != 10 || dep.APIRateLimitRPM != 100 || dep.MaxBodyBytes != 2048 {
		t.Fatalf("unexpected limits: %+v", dep)
	}
	if len(dep.CORSOrigins) != 1 || dep.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %+v", dep.CORSOrigins)
	}
	if dep.GlobalRateLimiter != nil || dep.AuthRateLimiter != nil {
		t.Fatal("limiters must default to in-process when redis is disabled")
	}
}

func TestProvideRouterDependenciesUsesRedisLimiter(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{APIRateLimitPerMin: 1, AuthRateLimitPerMin: 1, RedisKeyPrefix: "test"}
	dep := provideRouterDependencies(cfg, nil, nil, nil, nil, nil, client, nil)
	if dep.GlobalRateLimiter == nil || dep.AuthRateLimiter == nil {
		t.Fatal("expected redis-backed limiters")
	}

	h := dep.GlobalRateLimiter(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	codes := make([]int, 0, 2)
	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
		req.RemoteAddr = "198.51.100.4:1000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

func TestRedisBackedProvidersFallBackWhenDisabled(t *testing.T) {
	cfg := &config.Config{RedisKeyPrefix: "test"}
	if _, ok := provideConnectionRegistry(cfg, nil).(*realtime.InMemoryConnectionRegistry); !ok {
		t.Fatal("expected in-memory connection registry")
	}
	if _, ok := provideActionLock(cfg, nil).(*realtime.InMemoryActionLock); !ok {
		t.Fatal("expected in-memory action lock")
	}
	if _, ok := provideAudienceCache(cfg, nil).(*service.InMemoryAudienceCacheStore); !ok {
		t.Fatal("expected in-memory audience cache")
	}
	if provideRedisClient(&config.Config{RedisEnabled: false}) != nil {
		t.Fatal("redis client created while disabled")
	}
}

func TestProvideOAuthServiceDisabledWithoutCredentials(t *testing.T) {
	if provideOAuthService(&config.Config{}, nil, nil).Enabled() {
		t.Fatal("oauth enabled without credentials")
	}
	cfg := &config.Config{GoogleClientID: "id", GoogleClientSecret: "secret", GoogleRedirectURL: "http://localhost/cb"}
	if !provideOAuthService(cfg, nil, nil).Enabled() {
		t.Fatal("oauth disabled with credentials")
	}
}
