package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func noContent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestCSRFMiddlewareRejectsMissingCookie(t *testing.T) {
	h := CSRFMiddleware(noContent())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "jwt"})
	req.Header.Set("X-CSRF-Token", "token")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf cookie, got %d", rr.Code)
	}
}

func TestCSRFMiddlewareRejectsMismatch(t *testing.T) {
	h := CSRFMiddleware(noContent())

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/abc", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "jwt"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "cookie-value"})
	req.Header.Set("X-CSRF-Token", "header-value")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for csrf mismatch, got %d", rr.Code)
	}
}

func TestCSRFMiddlewareAllowsMatchingTokenAndSafeMethods(t *testing.T) {
	h := CSRFMiddleware(noContent())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "jwt"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "match"})
	req.Header.Set("X-CSRF-Token", "match")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for valid csrf token, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected GET to bypass csrf, got %d", rr.Code)
	}
}

func TestCSRFMiddlewareSkipsBearerOnlyRequests(t *testing.T) {
	h := CSRFMiddleware(noContent())

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer jwt")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected bearer request to bypass csrf, got %d", rr.Code)
	}
}

func TestCSRFPathGroup(t *testing.T) {
	cases := map[string]string{
		"/":                           "root",
		"/api/v1/auth/login":          "api/auth",
		"/api/v1/sessions/abc":        "api/sessions",
		"/api/v1/conversations/x/msg": "api/conversations",
		"/health/ready":               "health",
		"/ws":                         "ws",
	}
	for input, expected := range cases {
		if got := csrfPathGroup(input); got != expected {
			t.Fatalf("csrfPathGroup(%q)=%q want %q", input, got, expected)
		}
	}
}

func TestSecurityHeadersAndCORS(t *testing.T) {
	h := SecurityHeaders(CORS([]string{"https://app.example.com"})(noContent()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("nosniff header = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign preflight: code=%d origin=%q", rr.Code, rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestBodyLimitRejectsOversizedBody(t *testing.T) {
	h := BodyLimit(8)(noContent())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@b.c"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}
