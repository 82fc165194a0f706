package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
)

// TokenValidator resolves a bearer token to identity claims. The concrete
// implementation lives in internal/identity; keeping an interface here lets
// handler tests stub authentication.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims is what the middleware needs from the identity provider: a stable
// user id and the primary role. Admin status is deliberately absent; it is
// resolved per-call by the access layer so stale elevation cannot ride a
// long-lived token.
type Claims struct {
	UserID domain.UserID
	Role   domain.Role
}

type contextKeyClaims struct{}

var ContextKeyClaims = contextKeyClaims{}

// GetClaims retrieves the authenticated claims from the context, or nil if
// the request is unauthenticated.
func GetClaims(ctx context.Context) *Claims {
	claims, ok := ctx.Value(ContextKeyClaims).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

const bearerPrefix = "Bearer "

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok {
				logger.WarnContext(r.Context(), "unauthorized access - missing token",
					"request_id", GetRequestID(r.Context()),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches claims when a valid token is present but lets
// anonymous requests through. Used by the public portfolio read path.
func OptionalAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix); ok {
				if claims, err := validator.ValidateToken(token); err == nil {
					ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
