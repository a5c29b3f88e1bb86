package observability

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Audit logs a security-relevant HTTP event. Callers append identifiers such
// as user_id and session_id; the request id and client address come from the
// chi middleware chain.
func Audit(r *http.Request, event string, attrs ...any) {
	fields := make([]any, 0, 8+len(attrs))
	fields = append(fields,
		"method", r.Method,
		"route", r.URL.Path,
		"client_ip", r.RemoteAddr,
		"request_id", middleware.GetReqID(r.Context()),
	)
	AuditContext(r.Context(), event, append(fields, attrs...)...)
}

// AuditContext records an audit event raised outside an HTTP request, such as
// a gateway disconnect or a background sweep.
func AuditContext(ctx context.Context, event string, attrs ...any) {
	slog.Default().InfoContext(ctx, "audit", append([]any{"event", event}, attrs...)...)
}
