package security

import (
	"net/http"
	"strings"
	"time"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	CSRFTokenCookie    = "csrf_token"
	OAuthStateCookie   = "oauth_state"
)

type CookieManager struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func NewCookieManager(domain string, secure bool, sameSite string) *CookieManager {
	ss := http.SameSiteLaxMode
	switch strings.ToLower(sameSite) {
	case "none":
		ss = http.SameSiteNoneMode
	case "strict":
		ss = http.SameSiteStrictMode
	}
	return &CookieManager{Domain: domain, Secure: secure, SameSite: ss}
}

func (c *CookieManager) SetTokenCookies(w http.ResponseWriter, accessToken, refreshToken, csrf string, accessTTL, refreshTTL time.Duration) {
	http.SetCookie(w, c.cookie(AccessTokenCookie, accessToken, "/", true, int(accessTTL.Seconds())))
	http.SetCookie(w, c.cookie(RefreshTokenCookie, refreshToken, "/api/v1/auth", true, int(refreshTTL.Seconds())))
	http.SetCookie(w, c.cookie(CSRFTokenCookie, csrf, "/", false, int(refreshTTL.Seconds())))
}

func (c *CookieManager) SetAccessCookie(w http.ResponseWriter, accessToken string, accessTTL time.Duration) {
	http.SetCookie(w, c.cookie(AccessTokenCookie, accessToken, "/", true, int(accessTTL.Seconds())))
}

func (c *CookieManager) SetStateCookie(w http.ResponseWriter, signedState string, ttl time.Duration) {
	http.SetCookie(w, c.cookie(OAuthStateCookie, signedState, "/api/v1/auth/google", true, int(ttl.Seconds())))
}

func (c *CookieManager) ClearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(AccessTokenCookie, "", "/", true, -1))
	http.SetCookie(w, c.cookie(RefreshTokenCookie, "", "/api/v1/auth", true, -1))
	http.SetCookie(w, c.cookie(CSRFTokenCookie, "", "/", false, -1))
	http.SetCookie(w, c.cookie(OAuthStateCookie, "", "/api/v1/auth/google", true, -1))
}

func (c *CookieManager) cookie(name, value, path string, httpOnly bool, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
		Domain:   c.Domain,
		MaxAge:   maxAge,
	}
}

func GetCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
