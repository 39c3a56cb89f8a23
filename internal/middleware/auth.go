// Package middleware holds the HTTP middlewares wrapped around the API routes.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"stresscam/internal/auth"
)

// ContextKey is a custom type for context keys
type ContextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey ContextKey = "user"
)

// TokenValidator is satisfied by *auth.Authenticator
type TokenValidator interface {
	IsEnabled() bool
	ValidateToken(token string) (*auth.Claims, error)
}

// AuthMiddleware creates an HTTP middleware for JWT authentication. The token
// is read from a Bearer Authorization header, or from the "token" query
// parameter for browser WebSocket clients that cannot set headers.
func AuthMiddleware(authenticator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authenticator.IsEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}

			claims, err := authenticator.ValidateToken(tokenString)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					writeUnauthorized(w, "token has expired")
				} else {
					writeUnauthorized(w, "invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		token := r.URL.Query().Get("token")
		return token, token != ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// GetUserFromContext retrieves user claims from the request context
func GetUserFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(UserContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}
