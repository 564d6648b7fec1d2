package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2/jwt"

	"focusforgeAPI/internal/logger"
)

type contextKey string

const ClerkIDKey contextKey = "clerkID"

// TokenVerifier resolves a bearer token to the Clerk subject it was issued for.
type TokenVerifier func(ctx context.Context, token string) (string, error)

// VerifyClerkToken checks a session token against Clerk. clerk.SetKey must
// have been called first.
func VerifyClerkToken(ctx context.Context, token string) (string, error) {
	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{
		Token: token,
	})
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ClerkAuth validates the bearer token and stores the Clerk user id in the
// request context.
func ClerkAuth(verify TokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	log = log.With("component", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader || strings.TrimSpace(token) == "" {
				respondWithError(w, http.StatusUnauthorized, "Invalid authorization format. Use 'Bearer <token>'")
				return
			}

			subject, err := verify(r.Context(), token)
			if err != nil || subject == "" {
				log.Debug("token verification failed", "error", err, "path", r.URL.Path)
				respondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClerkID(r.Context(), subject)))
		})
	}
}

// WithClerkID returns a context carrying the authenticated Clerk user id.
func WithClerkID(ctx context.Context, clerkID string) context.Context {
	return context.WithValue(ctx, ClerkIDKey, clerkID)
}

// GetClerkID extracts Clerk user ID from context
func GetClerkID(ctx context.Context) (string, bool) {
	clerkID, ok := ctx.Value(ClerkIDKey).(string)
	return clerkID, ok && clerkID != ""
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
