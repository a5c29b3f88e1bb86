package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sandeepkv93/social-realtime-backend/internal/service"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &apiError{Code: code, Message: message, Details: details}, Meta: buildMeta(r)})
}

// ServiceError maps a service error to its client-facing status. Server-class
// errors are logged and collapsed to a generic 500; verbose adds the error
// text to details for development builds.
func ServiceError(w http.ResponseWriter, r *http.Request, err error, verbose bool) {
	class := service.Classify(err)
	var details any
	if verbose {
		details = map[string]string{"error": err.Error()}
	}
	switch class {
	case service.ClassAuth:
		Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired session", nil)
	case service.ClassForbidden:
		Error(w, r, http.StatusForbidden, "FORBIDDEN", "forbidden", nil)
	case service.ClassNotFound:
		Error(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case service.ClassValidation:
		Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case service.ClassConflict:
		Error(w, r, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case service.ClassRateLimit:
		Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"error", err,
		)
		Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", details)
	}
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}
