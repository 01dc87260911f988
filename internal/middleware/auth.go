package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/2beens/tableorder/internal/auth"
	"github.com/2beens/tableorder/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

// sessionChecker is what the middleware needs from the auth service
type sessionChecker interface {
	Validate(ctx context.Context, token string) (*auth.Session, error)
}

type AuthMiddlewareHandler struct {
	checker      sessionChecker
	allowedPaths map[string]bool
}

func NewAuthMiddlewareHandler(checker sessionChecker) *AuthMiddlewareHandler {
	return &AuthMiddlewareHandler{
		checker: checker,
		allowedPaths: map[string]bool{
			// customer-facing order submission:
			"/orders": true,

			// login-logout:
			"/a/login":  true,
			"/a/logout": true,

			"/health": true,

			// the stream endpoint authenticates via query token on its own
			// (EventSource clients cannot set an Authorization header)
			"/admin/orders/stream": true,
		},
	}
}

func (h *AuthMiddlewareHandler) AuthCheck() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.GlobalTracer.Start(r.Context(), "middleware.auth")
			defer span.End()

			if r.Method == http.MethodOptions {
				w.Header().Add("Allow", "GET, POST, PATCH, OPTIONS")
				w.WriteHeader(http.StatusOK)
				span.SetStatus(codes.Ok, "options-ok")
				return
			}

			if h.allowedPaths[r.URL.Path] {
				span.SetStatus(codes.Ok, "ok")
				next.ServeHTTP(w, r)
				return
			}

			authToken := BearerToken(r)
			if authToken == "" {
				log.Tracef("[missing token] [auth middleware] unauthorized => %s", r.URL.Path)
				http.Error(w, "no can do", http.StatusUnauthorized)
				span.SetStatus(codes.Error, "missing-auth-token")
				return
			}

			if _, err := h.checker.Validate(ctx, authToken); err != nil {
				log.Tracef("[invalid token] [auth middleware] unauthorized => %s", r.URL.Path)
				http.Error(w, "no can do", http.StatusUnauthorized)
				span.SetStatus(codes.Error, "not-logged")
				return
			}

			span.SetStatus(codes.Ok, "ok")
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the auth token from the Authorization header,
// with or without the "Bearer " prefix
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if token, found := strings.CutPrefix(authHeader, "Bearer "); found {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(authHeader)
}
