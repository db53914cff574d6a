package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgAuth "github.com/petalpost/storefront-backend/pkg/auth"
	"github.com/petalpost/storefront-backend/pkg/config"
	"github.com/petalpost/storefront-backend/pkg/db/models"
	"github.com/petalpost/storefront-backend/pkg/enums"
	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/security"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "petalpost", ExpirationMinutes: 30}

func TestServiceLoginMintsTokenAndStartsSession(t *testing.T) {
	user := newTestUser(t, "admin-secret", enums.UserRoleAdmin)
	svc, repo, sessions := buildTestService(t, user)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: "  ADMIN@petalpost.test ", Password: "admin-secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.Token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Role != enums.UserRoleAdmin || claims.UserID != user.ID {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, ok := sessions.live[claims.ID]; !ok {
		t.Fatalf("expected session for %s", claims.ID)
	}
	if repo.lastLogin.IsZero() {
		t.Fatalf("expected last login to be recorded")
	}
	if resp.User == nil || resp.User.Email != user.Email {
		t.Fatalf("unexpected user %+v", resp.User)
	}
}

func TestServiceLoginRejectsBadCredentials(t *testing.T) {
	user := newTestUser(t, "right", enums.UserRoleAdmin)
	inactive := newTestUser(t, "right", enums.UserRoleVendor)
	inactive.IsActive = false

	cases := map[string]struct {
		user  *models.User
		email string
		pw    string
	}{
		"unknown email":  {user: user, email: "nobody@petalpost.test", pw: "right"},
		"wrong password": {user: user, email: user.Email, pw: "wrong"},
		"blank email":    {user: user, email: "  ", pw: "right"},
		"inactive":       {user: inactive, email: inactive.Email, pw: "right"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc, _, _ := buildTestService(t, tc.user)
			_, err := svc.Login(context.Background(), LoginRequest{Email: tc.email, Password: tc.pw})
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
				t.Fatalf("expected unauthorized, got %v", err)
			}
			if typed.Message() != invalidCredentialsMessage {
				t.Fatalf("expected generic message, got %q", typed.Message())
			}
		})
	}
}

func TestServiceCheckAndLogout(t *testing.T) {
	user := newTestUser(t, "pw", enums.UserRoleVendor)
	svc, _, sessions := buildTestService(t, user)
	ctx := context.Background()

	resp, err := svc.Login(ctx, LoginRequest{Email: user.Email, Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	result, err := svc.Check(ctx, resp.Token)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Authenticated || result.User.Role != enums.UserRoleVendor {
		t.Fatalf("expected authenticated vendor, got %+v", result)
	}

	if err := svc.Logout(ctx, resp.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(sessions.live) != 0 {
		t.Fatalf("expected session revoked")
	}
	result, err = svc.Check(ctx, resp.Token)
	if err != nil {
		t.Fatalf("check after logout: %v", err)
	}
	if result.Authenticated {
		t.Fatalf("revoked token must not authenticate")
	}
}

func TestServiceCheckTreatsGarbageAsUnauthenticated(t *testing.T) {
	svc, _, _ := buildTestService(t, newTestUser(t, "pw", enums.UserRoleAdmin))
	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		result, err := svc.Check(context.Background(), token)
		if err != nil {
			t.Fatalf("check %q: %v", token, err)
		}
		if result.Authenticated {
			t.Fatalf("token %q should not authenticate", token)
		}
	}
}

func TestServiceCheckSurfacesSessionOutage(t *testing.T) {
	user := newTestUser(t, "pw", enums.UserRoleAdmin)
	svc, _, sessions := buildTestService(t, user)
	resp, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	sessions.err = errors.New("redis down")
	_, err = svc.Check(context.Background(), resp.Token)
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestServiceLoginUpgradesWeakHash(t *testing.T) {
	user := newTestUser(t, "pw", enums.UserRoleAdmin)
	repo := &stubUserRepo{user: user}
	current := config.PasswordConfig{ArgonMemoryKB: 2048, ArgonTime: 2, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		SessionManager: &stubSessions{live: map[string]time.Time{}},
		JWTConfig:      testJWT,
		Password:       current,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	if _, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if repo.rehashed == "" || security.NeedsRehash(repo.rehashed, current) {
		t.Fatalf("expected hash upgraded to current costs, got %q", repo.rehashed)
	}
	if ok, _ := security.VerifyPassword("pw", repo.rehashed); !ok {
		t.Fatal("upgraded hash must still verify")
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatalf("expected error without user repo")
	}
	if _, err := NewService(ServiceParams{UserRepo: &stubUserRepo{}}); err == nil {
		t.Fatalf("expected error without session manager")
	}
}

func buildTestService(t *testing.T, user *models.User) (Service, *stubUserRepo, *stubSessions) {
	t.Helper()
	repo := &stubUserRepo{user: user}
	sessions := &stubSessions{live: map[string]time.Time{}}
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		SessionManager: sessions,
		JWTConfig:      testJWT,
		Now:            func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, repo, sessions
}

func newTestUser(t *testing.T, password string, role enums.UserRole) *models.User {
	t.Helper()
	hashed, err := security.HashPassword(password, config.PasswordConfig{
		ArgonMemoryKB: 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32,
	})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &models.User{
		ID:           uuid.New(),
		Email:        string(role) + "@petalpost.test",
		PasswordHash: hashed,
		Role:         role,
		IsActive:     true,
	}
}

type stubUserRepo struct {
	user      *models.User
	lastLogin time.Time
	rehashed  string
}

func (s *stubUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s *stubUserRepo) UpdateLastLogin(_ context.Context, _ uuid.UUID, at time.Time) error {
	s.lastLogin = at
	return nil
}

func (s *stubUserRepo) UpdatePasswordHash(_ context.Context, _ uuid.UUID, hash string) error {
	s.rehashed = hash
	return nil
}

type stubSessions struct {
	live map[string]time.Time
	err  error
}

func (s *stubSessions) Start(_ context.Context, accessID string, at time.Time) error {
	s.live[accessID] = at
	return nil
}

func (s *stubSessions) HasSession(_ context.Context, accessID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.live[accessID]
	return ok, nil
}

func (s *stubSessions) Revoke(_ context.Context, accessID string) error {
	delete(s.live, accessID)
	return nil
}
