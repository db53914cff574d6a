package users

import (
	"context"
	"fmt"

	"github.com/petalpost/storefront-backend/pkg/config"
	"github.com/petalpost/storefront-backend/pkg/enums"
	"github.com/petalpost/storefront-backend/pkg/logger"
	"github.com/petalpost/storefront-backend/pkg/security"
)

// EnsureAdmin creates the bootstrap admin if no account exists for the email.
// An existing account is left untouched, password included. The password is
// hashed even when nothing is written.
func EnsureAdmin(ctx context.Context, repo *Repository, cfg config.BootstrapConfig, pw config.PasswordConfig, logg *logger.Logger) (bool, error) {
	if !cfg.Enabled() {
		return false, nil
	}
	hash, err := security.HashPassword(cfg.AdminPassword, pw)
	if err != nil {
		return false, fmt.Errorf("hash bootstrap admin password: %w", err)
	}
	_, created, err := repo.CreateIfAbsent(ctx, CreateUserDTO{
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         enums.UserRoleAdmin,
	})
	if err != nil {
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}
	if !created {
		return false, nil
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "email", NormalizeEmail(cfg.AdminEmail)), "bootstrap admin created")
	}
	return true, nil
}
