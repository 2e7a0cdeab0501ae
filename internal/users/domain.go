package users

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/estatehub/estatehub/internal/platform/httpx"
	"github.com/estatehub/estatehub/internal/rbac"
)

// User represents an account that can sign in.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserRole is one role held by a user.
type UserRole struct {
	UserID     uuid.UUID `json:"user_id"`
	Role       rbac.Role `json:"role"`
	AssignedAt time.Time `json:"assigned_at"`
}

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = fmt.Errorf("users: user %w", httpx.ErrNotFound)
	// ErrInactive is returned for disabled accounts.
	ErrInactive = fmt.Errorf("users: account %w", httpx.ErrForbidden)
)

// Primary returns the earliest assigned role. roles must be ordered by
// assignment time.
func Primary(roles []UserRole) (rbac.Role, bool) {
	if len(roles) == 0 {
		return "", false
	}
	return roles[0].Role, true
}
