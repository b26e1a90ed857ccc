// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const tokenKey ctxKey = "token"

// TokenAuth is a middleware that enforces bearer token authentication.
//
// It checks whether the incoming HTTP request carries an
// "Authorization: Bearer <token>" header. The token itself is validated
// downstream against the session table; here only its presence is
// enforced.
//
// On success the raw token is stored in the request context, so handlers
// can pass it to the cluster operations.
func TokenAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"missing bearer token"}`))
			return
		}
		ctx := context.WithValue(r.Context(), tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTokenFromContext extracts the bearer token from the request context.
// Returns an empty string if not found.
func GetTokenFromContext(ctx context.Context) string {
	val := ctx.Value(tokenKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
