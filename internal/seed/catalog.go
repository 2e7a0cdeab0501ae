// Package seed loads the default permission catalog and role grants.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/estatehub/estatehub/internal/rbac"
	"github.com/estatehub/estatehub/internal/shared"
)

// Result counts what a run changed.
type Result struct {
	Created int
	Granted int
}

// Grants decides which roles receive a catalog entry by default.
func Grants(p shared.PermissionSeed) []rbac.Role {
	roles := []rbac.Role{rbac.RoleSuperAdmin, rbac.RoleAdmin}
	if p.Action != string(rbac.ActionRead) {
		return roles
	}
	switch p.Module {
	case "Users", "Permissions":
		return append(roles, rbac.RoleManager)
	}
	for _, r := range rbac.Roles() {
		if r != rbac.RoleSuperAdmin && r != rbac.RoleAdmin {
			roles = append(roles, r)
		}
	}
	return roles
}

// Catalog creates missing permissions from catalog and grants their defaults.
// Permissions that already exist are skipped with their grants untouched.
func Catalog(ctx context.Context, svc *rbac.Service, catalog []shared.PermissionSeed, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	snap, err := svc.Snapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	existing := make(map[string]struct{}, len(snap.Permissions))
	for _, p := range snap.Permissions {
		existing[p.Name] = struct{}{}
	}

	var res Result
	for _, entry := range catalog {
		if _, ok := existing[entry.Name]; ok {
			continue
		}
		perm, err := svc.CreatePermission(ctx, rbac.CreatePermissionInput{
			Name:        entry.Name,
			Description: entry.Description,
			Module:      entry.Module,
			Action:      entry.Action,
		})
		if err != nil {
			return res, fmt.Errorf("seed %s: %w", entry.Name, err)
		}
		existing[entry.Name] = struct{}{}
		res.Created++
		for _, role := range Grants(entry) {
			if _, err := svc.TogglePermission(ctx, role, perm.ID); err != nil {
				return res, fmt.Errorf("grant %s to %s: %w", entry.Name, role, err)
			}
			res.Granted++
		}
	}
	logger.Info("permission catalog seeded", slog.Int("created", res.Created), slog.Int("granted", res.Granted))
	return res, nil
}
