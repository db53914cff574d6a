package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/petalpost/storefront-backend/internal/users"
	pkgAuth "github.com/petalpost/storefront-backend/pkg/auth"
	"github.com/petalpost/storefront-backend/pkg/auth/session"
	"github.com/petalpost/storefront-backend/pkg/config"
	"github.com/petalpost/storefront-backend/pkg/db/models"
	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/logger"
	"github.com/petalpost/storefront-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controller and middleware.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Check(ctx context.Context, token string) (*CheckResult, error)
	Logout(ctx context.Context, token string) error
}

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type sessionManager interface {
	Start(ctx context.Context, accessID string, loginAt time.Time) error
	HasSession(ctx context.Context, accessID string) (bool, error)
	Revoke(ctx context.Context, accessID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo       userRepository
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	// Password, when set, upgrades hashes made with older costs on login.
	Password       config.PasswordConfig
	Logger         *logger.Logger
	Now            func() time.Time
}

type service struct {
	users   userRepository
	session sessionManager
	jwtCfg  config.JWTConfig
	pwCfg   config.PasswordConfig
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	svc := &service{
		users:   params.UserRepo,
		session: params.SessionManager,
		jwtCfg:  params.JWTConfig,
		pwCfg:   params.Password,
		logg:    params.Logger,
		now:     params.Now,
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	now, err := s.recordLogin(ctx, user)
	if err != nil {
		return nil, err
	}

	accessID := session.NewAccessID()
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		JTI:    accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if err := s.session.Start(ctx, accessID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start session")
	}

	s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "auth.login")
	return &LoginResponse{
		Token:     token,
		ExpiresAt: now.Add(s.jwtCfg.Expiration()),
		User:      users.FromModel(user),
	}, nil
}

// Check never fails on a bad token; it answers unauthenticated instead.
// Only a session store outage is an error.
func (s *service) Check(ctx context.Context, token string) (*CheckResult, error) {
	identity, err := s.identify(ctx, token)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return &CheckResult{}, nil
	}
	return &CheckResult{Authenticated: true, User: identity}, nil
}

func (s *service) Logout(ctx context.Context, token string) error {
	claims, err := pkgAuth.ParseAccessToken(s.jwtCfg, strings.TrimSpace(token))
	if err != nil {
		return nil
	}
	if err := s.session.Revoke(ctx, claims.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	s.logg.Info(s.logg.WithUserID(ctx, claims.UserID.String()), "auth.logout")
	return nil
}

func (s *service) identify(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	claims, err := pkgAuth.ParseAccessToken(s.jwtCfg, token)
	if err != nil {
		s.logg.Debug(ctx, "auth.check.invalid_token")
		return nil, nil
	}
	live, err := s.session.HasSession(ctx, claims.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup session")
	}
	if !live {
		return nil, nil
	}
	return &Identity{
		UserID:   claims.UserID,
		Email:    claims.Email,
		Role:     claims.Role,
		AccessID: claims.ID,
	}, nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	input := users.NormalizeEmail(email)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByEmail(ctx, input)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	valid, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	s.upgradeHash(ctx, user, password)
	return user, nil
}

// upgradeHash re-hashes a verified password made with outdated costs. Failure
// only costs the upgrade, never the login.
func (s *service) upgradeHash(ctx context.Context, user *models.User, password string) {
	if s.pwCfg == (config.PasswordConfig{}) || !security.NeedsRehash(user.PasswordHash, s.pwCfg) {
		return
	}
	ctx = s.logg.WithUserID(ctx, user.ID.String())
	hash, err := security.HashPassword(password, s.pwCfg)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		s.logg.Error(ctx, "auth.rehash_failed", err)
		return
	}
	user.PasswordHash = hash
	s.logg.Info(ctx, "auth.password_rehashed")
}

func (s *service) recordLogin(ctx context.Context, user *models.User) (time.Time, error) {
	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	user.LastLoginAt = &now
	return now, nil
}
