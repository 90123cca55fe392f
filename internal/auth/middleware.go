package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/calorieai/calorie-bot/internal/api"
)

type contextKey struct{}

// Middleware rejects requests without a valid bearer token carrying role and
// stores the verified claims in the request context.
func Middleware(mgr *JWTManager, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := mgr.ValidateToken(token)
			if err != nil {
				slog.Warn("admin auth: rejected token", "path", r.URL.Path, "error", err)
				api.HandleError(w, api.ErrInvalidToken)
				return
			}
			if claims.Role != role {
				slog.Warn("admin auth: wrong role", "subject", claims.Subject, "role", claims.Role)
				api.HandleError(w, api.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetClaims returns the claims stored by Middleware, or nil.
func GetClaims(ctx context.Context) *AdminClaims {
	claims, _ := ctx.Value(contextKey{}).(*AdminClaims)
	return claims
}

// Operator returns the subject of the authenticated admin, or "" outside Middleware.
func Operator(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}
