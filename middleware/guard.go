package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/carebook"
)

// TokenValidator is satisfied by *carebook.Engine.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*carebook.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims Guard stored for the request.
func ClaimsFromContext(ctx context.Context) (*carebook.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*carebook.Claims)
	return c, ok
}

// WithClaims stores claims on ctx the way Guard does. Handlers under test use
// it to skip token minting.
func WithClaims(ctx context.Context, c *carebook.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, c)
}

// Guard rejects requests without a valid bearer token with 401 and stores
// the verified claims on the request context.
func Guard(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil {
				writeMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			claims, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
