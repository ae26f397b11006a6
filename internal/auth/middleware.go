package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/finbrain/finbrain/internal/api"
)

type contextKey string

const sessionClaimsKey contextKey = "session_claims"

// Middleware requires a valid bearer access token and stores its claims in
// the request context.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := svc.ValidateAccessToken(parts[1])
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func WithClaims(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, sessionClaimsKey, claims)
}

func GetSessionClaims(ctx context.Context) *SessionClaims {
	claims, _ := ctx.Value(sessionClaimsKey).(*SessionClaims)
	return claims
}

// SessionIDFromContext returns the authenticated session, or "".
func SessionIDFromContext(ctx context.Context) string {
	if c := GetSessionClaims(ctx); c != nil {
		return c.SessionID
	}
	return ""
}
