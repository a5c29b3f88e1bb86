package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

var ErrInvalidCSRF = errors.New("invalid csrf token")

func NewRandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func SignState(state, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(state))
	return state + "." + base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func VerifySignedState(raw, secret string) (string, bool) {
	state, _, ok := strings.Cut(raw, ".")
	if !ok || state == "" {
		return "", false
	}
	if !hmac.Equal([]byte(SignState(state, secret)), []byte(raw)) {
		return "", false
	}
	return state, true
}

func NewCSRFToken() (string, error) {
	return NewRandomString(24)
}

// RequireCSRFFromHeader enforces the double-submit check for cookie-borne
// credentials.
func RequireCSRFFromHeader(r *http.Request) error {
	cookie := GetCookie(r, CSRFTokenCookie)
	head := r.Header.Get("X-CSRF-Token")
	if cookie == "" || head == "" || !hmac.Equal([]byte(head), []byte(cookie)) {
		return ErrInvalidCSRF
	}
	return nil
}
