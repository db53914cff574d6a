package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgAuth "github.com/petalpost/storefront-backend/pkg/auth"
	"github.com/petalpost/storefront-backend/pkg/config"
	"github.com/petalpost/storefront-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "petalpost", ExpirationMinutes: 15}

type stubSessions struct {
	live map[string]bool
	err  error
}

func (s stubSessions) HasSession(_ context.Context, id string) (bool, error) {
	return s.live[id], s.err
}

func mintToken(t *testing.T, role enums.UserRole, jti string) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(testJWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		JTI:    jti,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return token
}

func TestAuthMiddleware(t *testing.T) {
	token := mintToken(t, enums.UserRoleAdmin, "jti-live")
	revoked := mintToken(t, enums.UserRoleAdmin, "jti-gone")
	sessions := stubSessions{live: map[string]bool{"jti-live": true}}

	var seenRole, seenAccess string
	handler := Auth(testJWT, sessions, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenRole = RoleFromContext(r.Context())
		seenAccess = AccessIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"revoked", "Bearer " + revoked, http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.want, rec.Code)
		}
	}
	if seenRole != string(enums.UserRoleAdmin) || seenAccess != "jti-live" {
		t.Fatalf("claims not propagated: role=%q access=%q", seenRole, seenAccess)
	}
}

func TestAuthMiddlewareSessionOutage(t *testing.T) {
	token := mintToken(t, enums.UserRoleAdmin, "jti")
	handler := Auth(testJWT, stubSessions{err: errors.New("redis down")}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.UserRoleAdmin, enums.UserRoleVendor)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for role, want := range map[string]int{
		"admin":    http.StatusOK,
		"vendor":   http.StatusOK,
		"customer": http.StatusForbidden,
		"":         http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(req.Context(), role))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("role %q: expected %d got %d", role, want, rec.Code)
		}
	}
}

func TestOptionalAuth(t *testing.T) {
	token := mintToken(t, enums.UserRoleCustomer, "jti-live")
	sessions := stubSessions{live: map[string]bool{"jti-live": true}}

	var seenUser string
	handler := OptionalAuth(testJWT, sessions, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	for header, wantUser := range map[string]bool{"": false, "Bearer junk": false, "Bearer " + token: true} {
		seenUser = ""
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("header %q: expected 200 got %d", header, rec.Code)
		}
		if (seenUser != "") != wantUser {
			t.Fatalf("header %q: user attached=%v want %v", header, seenUser != "", wantUser)
		}
	}
}
