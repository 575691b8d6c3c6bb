package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"fleet-tracking/pkg"
)

type ctxKey string

const userCtxKey ctxKey = "user"

func authMiddleware(next http.Handler, secret []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claim, err := getClaim(r, secret)
		if err != nil {
			errorWrite(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), userCtxKey, claim)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// roleMiddleware wraps authMiddleware and additionally requires one of the
// listed roles.
func roleMiddleware(next http.Handler, secret []byte, roles ...string) http.Handler {
	return authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claim, ok := r.Context().Value(userCtxKey).(*pkg.MyClaims)
		if !ok {
			errorWrite(w, http.StatusInternalServerError, fmt.Errorf("context error"))
			return
		}
		for _, role := range roles {
			if claim.Role == role {
				next.ServeHTTP(w, r)
				return
			}
		}
		errorWrite(w, http.StatusForbidden, fmt.Errorf("role %s is not allowed", claim.Role))
	}), secret)
}

func getClaim(r *http.Request, secret []byte) (*pkg.MyClaims, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}

	parts := strings.Split(auth, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, fmt.Errorf("invalid Authorization header")
	}

	return pkg.ParseTokenMyClaims(parts[1], secret)
}

func claimFrom(r *http.Request) (*pkg.MyClaims, error) {
	claim, ok := r.Context().Value(userCtxKey).(*pkg.MyClaims)
	if !ok {
		return nil, fmt.Errorf("context error")
	}
	return claim, nil
}
