package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatehub/estatehub/internal/rbac"
	"github.com/estatehub/estatehub/internal/shared"
)

func TestCatalogSeedsOnce(t *testing.T) {
	ctx := context.Background()
	svc := rbac.NewService(rbac.NewMemoryStore())
	catalog := shared.Catalog()

	res, err := Catalog(ctx, svc, catalog, nil)
	require.NoError(t, err)
	require.Equal(t, len(catalog), res.Created)
	require.Positive(t, res.Granted)

	again, err := Catalog(ctx, svc, catalog, nil)
	require.NoError(t, err)
	require.Equal(t, Result{}, again)

	perms, err := svc.ListPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, perms, len(catalog))
}

func TestCatalogDefaultGrants(t *testing.T) {
	ctx := context.Background()
	svc := rbac.NewService(rbac.NewMemoryStore())
	_, err := Catalog(ctx, svc, shared.Catalog(), nil)
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	admin := snap.PermissionNames(rbac.RoleAdmin)
	assert.Len(t, admin, len(shared.Catalog()))

	tenant := snap.PermissionNames(rbac.RoleTenant)
	assert.Contains(t, tenant, "leases.read")
	assert.NotContains(t, tenant, "leases.manage")
	assert.NotContains(t, tenant, shared.PermPermissionsRead)

	manager := snap.PermissionNames(rbac.RoleManager)
	assert.Contains(t, manager, shared.PermUsersRead)
	assert.NotContains(t, manager, shared.PermPermissionsManage)
}

func TestGrants(t *testing.T) {
	write := shared.PermissionSeed{Name: "leases.manage", Module: "Leases", Action: "manage"}
	require.Equal(t, []rbac.Role{rbac.RoleSuperAdmin, rbac.RoleAdmin}, Grants(write))

	read := shared.PermissionSeed{Name: "reports.read", Module: "Reports", Action: "read"}
	require.Len(t, Grants(read), len(rbac.Roles()))
}
