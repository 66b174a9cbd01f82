package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are issued by the external auth service; this server only
// verifies them.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type contextKey string

const claimsKey contextKey = "claims"

var errNoToken = errors.New("missing token")

func (a *API) parseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("invalid token: missing user_id")
	}
	return claims, nil
}

// claimsFromRequest reads a bearer header or, for browsers opening a
// WebSocket, the token query parameter.
func (a *API) claimsFromRequest(r *http.Request) (*Claims, error) {
	tokenString := r.URL.Query().Get("token")
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return nil, fmt.Errorf("invalid authorization header")
		}
	}
	if tokenString == "" {
		return nil, errNoToken
	}
	return a.parseToken(tokenString)
}

// Middleware
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.claimsFromRequest(r)
		if err != nil {
			if errors.Is(err, errNoToken) {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
