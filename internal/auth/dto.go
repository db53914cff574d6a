package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/petalpost/storefront-backend/internal/users"
	"github.com/petalpost/storefront-backend/pkg/enums"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the access token and the user it was issued to.
type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      *users.UserDTO `json:"user"`
}

// Identity is what a valid token says about its holder.
type Identity struct {
	UserID   uuid.UUID      `json:"id"`
	Email    string         `json:"email,omitempty"`
	Role     enums.UserRole `json:"role"`
	AccessID string         `json:"-"`
}

// CheckResult is the token-check answer consumed by the client auth guard.
type CheckResult struct {
	Authenticated bool      `json:"authenticated"`
	User          *Identity `json:"user,omitempty"`
}
