package middleware

import (
	"context"
	"net/http"
	"strings"

	"racuni/internal/shared/auth"
)

type ContextKey string

const UserIDKey ContextKey = "user_id"

// UserIDFromContext returns the authenticated user id set by Auth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// Auth requires a valid bearer token and stores its user id in the request
// context. Failures are answered with a JSON 401.
func Auth(verifier auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
				return
			}
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid authorization header format")
				return
			}

			userID, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil || userID == "" {
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AllowMethods rejects requests whose method is not listed with a JSON 405.
// It runs before Auth so a wrong verb is reported even without a token.
func AllowMethods(methods ...string) func(http.Handler) http.Handler {
	allow := strings.Join(methods, ", ")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, m := range methods {
				if r.Method == m {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("Allow", allow)
			WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
		})
	}
}
