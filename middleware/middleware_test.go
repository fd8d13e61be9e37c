package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/carebook"
	"github.com/MrEthical07/carebook/permission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	claims *carebook.Claims
	token  string
}

func (s stubValidator) ValidateToken(_ context.Context, token string) (*carebook.Claims, error) {
	if token != s.token {
		return nil, carebook.ErrTokenInvalid
	}
	return s.claims, nil
}

func okHandler(t *testing.T, wantRole carebook.Role) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims.Role != wantRole {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestGuard(t *testing.T) {
	v := stubValidator{
		token:  "good",
		claims: &carebook.Claims{UserID: "u1", Email: "a@example.com", Role: carebook.RoleUser},
	}
	h := Guard(v)(okHandler(t, carebook.RoleUser))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", want: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer   ", want: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer good", want: http.StatusNoContent},
		{name: "case insensitive scheme", header: "bearer good", want: http.StatusNoContent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusUnauthorized {
				assert.JSONEq(t, `{"message":"Unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestGuardNilValidator(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	Guard(nil)(okHandler(t, carebook.RoleUser)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequirePermission(t *testing.T) {
	roles, err := permission.NewPracticeRoles()
	require.NoError(t, err)

	tests := []struct {
		role carebook.Role
		perm string
		want int
	}{
		{role: carebook.RoleUser, perm: permission.AppointmentBook, want: http.StatusNoContent},
		{role: carebook.RoleUser, perm: permission.RoleManage, want: http.StatusForbidden},
		{role: carebook.RoleCounselor, perm: permission.AvailabilityManage, want: http.StatusNoContent},
		{role: carebook.RoleCounselor, perm: permission.RoleManage, want: http.StatusForbidden},
		{role: carebook.RoleAdmin, perm: permission.RoleManage, want: http.StatusNoContent},
		{role: carebook.Role("root"), perm: permission.ProfileRead, want: http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(string(tc.role)+"/"+tc.perm, func(t *testing.T) {
			h := RequirePermission(roles, tc.perm)(okHandler(t, tc.role))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithClaims(req.Context(), &carebook.Claims{Role: tc.role}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRequireWithoutGuard(t *testing.T) {
	roles, err := permission.NewPracticeRoles()
	require.NoError(t, err)

	for name, mw := range map[string]func(http.Handler) http.Handler{
		"permission": RequirePermission(roles, permission.ProfileRead),
		"role":       RequireRole(carebook.RoleAdmin),
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mw(okHandler(t, carebook.RoleAdmin)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(carebook.RoleCounselor, carebook.RoleAdmin)

	for role, want := range map[carebook.Role]int{
		carebook.RoleUser:      http.StatusForbidden,
		carebook.RoleCounselor: http.StatusNoContent,
		carebook.RoleAdmin:     http.StatusNoContent,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithClaims(req.Context(), &carebook.Claims{Role: role}))
		rec := httptest.NewRecorder()
		h(okHandler(t, role)).ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "role %s", role)
	}
}

func TestGuardThenPermission(t *testing.T) {
	roles, err := permission.NewPracticeRoles()
	require.NoError(t, err)

	v := stubValidator{token: "t", claims: &carebook.Claims{UserID: "u", Role: carebook.RoleUser}}
	h := Guard(v)(RequirePermission(roles, permission.RoleManage)(okHandler(t, carebook.RoleUser)))

	req := httptest.NewRequest(http.MethodPatch, "/admin", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
