package middleware

import (
	"net/http"

	"github.com/MrEthical07/carebook"
	"github.com/MrEthical07/carebook/permission"
)

// RequirePermission allows the request when the caller's role grants perm.
// It must run after Guard; a request without claims gets 401.
func RequirePermission(roles *permission.RoleManager, perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if roles == nil || !roles.Allows(string(claims.Role), perm) {
				writeMessage(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole allows the request when the caller holds one of allowed.
func RequireRole(allowed ...carebook.Role) func(http.Handler) http.Handler {
	set := make(map[carebook.Role]struct{}, len(allowed))
	for _, role := range allowed {
		set[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if _, ok := set[claims.Role]; !ok {
				writeMessage(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
