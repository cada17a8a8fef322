package middleware

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/upb/omniagent/internal/shared"
)

// RequestIDHeader is echoed on every response so clients can quote it.
const RequestIDHeader = "X-Request-Id"

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if id := shared.RequestID(ctx); id != "" {
		return id
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return shared.WithRequestID(ctx, requestID)
}

// RequestContext copies the chi request ID into the context keys read by
// the routing services and the event log. It must run after chi's RequestID.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := chimw.GetReqID(ctx)
		if requestID != "" {
			ctx = WithRequestID(ctx, requestID)
			w.Header().Set(RequestIDHeader, requestID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
