package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sandeepkv93/social-realtime-backend/internal/fingerprint"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/middleware"
	"github.com/sandeepkv93/social-realtime-backend/internal/service"
)

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", service.ErrValidation)
		}
		return fmt.Errorf("%w: malformed request body", service.ErrValidation)
	}
	return nil
}

// deviceMeta captures the connection metadata a session binds to.
func deviceMeta(r *http.Request) service.DeviceMeta {
	loc := fingerprint.LocationFromHeaders(r.Header)
	return service.DeviceMeta{
		UserAgent: r.UserAgent(),
		IP:        fingerprint.ClientIP(r),
		Location:  &loc,
	}
}

func principal(r *http.Request) (*service.Principal, error) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return nil, service.ErrSessionInvalid
	}
	return p, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", service.ErrValidation, key)
	}
	return v, nil
}
