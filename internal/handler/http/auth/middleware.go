// Package auth protects the ambient admin surface (the Prometheus scrape
// endpoint) with a bearer JWT. This core has no user store or login flow of
// its own, so tokens are minted out of band (an ops script signing with
// JWT_SECRET) rather than issued by an endpoint here.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zhanzhaozzz/newsradar/internal/handler/http/respond"
)

// RequireBearer wraps next so that requests must carry a valid HS256 JWT in
// the Authorization header, signed with JWT_SECRET. When JWT_SECRET is
// unset, the middleware is a no-op: local and CI runs shouldn't need a
// token to scrape their own metrics.
func RequireBearer(next http.Handler) http.Handler {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := validateToken(r.Header.Get("Authorization"), []byte(secret)); err != nil {
			respond.Error(w, http.StatusUnauthorized, fmt.Errorf("unauthorized: %w", err))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validateToken(authz string, secret []byte) error {
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return errors.New("missing bearer token")
	}
	tokenString := strings.TrimPrefix(authz, prefix)

	tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !tok.Valid {
		return errors.New("invalid token")
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid claims")
	}
	exp, ok := claims["exp"].(float64)
	if !ok || int64(exp) < time.Now().Unix() {
		return errors.New("token expired")
	}
	return nil
}
