package rbac

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the authoritative persistence for permissions and role
// assignments. Implementations return ErrNotFound when a referenced
// permission does not exist and ErrDuplicateName on a name clash; any other
// error is treated as the store being unavailable.
type Store interface {
	// ListPermissions orders by module, then insertion order.
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListAssignments(ctx context.Context) ([]Assignment, error)
	HasAssignment(ctx context.Context, role Role, permissionID uuid.UUID) (bool, error)
	InsertPermission(ctx context.Context, perm Permission) error
	// DeletePermission removes the permission together with its assignments
	// and reports how many assignments were removed.
	DeletePermission(ctx context.Context, id uuid.UUID) (int, error)
	// ToggleAssignment grants the pair when absent and revokes it when
	// present, returning the resulting membership.
	ToggleAssignment(ctx context.Context, role Role, permissionID uuid.UUID, at time.Time) (bool, error)
	// PruneOrphanAssignments deletes assignments whose permission is gone.
	PruneOrphanAssignments(ctx context.Context) (int, error)
}
