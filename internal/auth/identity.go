package auth

import (
	"context"

	"github.com/estatehub/estatehub/internal/rbac"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID      string      `json:"user_id"`
	Email       string      `json:"email"`
	Roles       []rbac.Role `json:"roles"`
	PrimaryRole rbac.Role   `json:"primary_role,omitempty"`
}

func (i *Identity) PrincipalID() string { return i.UserID }
func (i *Identity) PrincipalRoles() []rbac.Role { return i.Roles }

// IdentityFromContext returns the identity stored by Middleware.Authenticate.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	p, ok := rbac.PrincipalFromContext(ctx)
	if !ok {
		return nil, false
	}
	id, ok := p.(*Identity)
	return id, ok
}
