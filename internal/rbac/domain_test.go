package rbac_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estatehub/estatehub/internal/rbac"
)

func TestRolesAreClosedAndOrdered(t *testing.T) {
	roles := rbac.Roles()
	require.Len(t, roles, 8)
	require.Equal(t, rbac.RoleSuperAdmin, roles[0])
	require.Equal(t, rbac.RoleAccountant, roles[7])

	roles[0] = rbac.Role("mutated")
	require.Equal(t, rbac.RoleSuperAdmin, rbac.Roles()[0])
}

func TestParseRole(t *testing.T) {
	role, err := rbac.ParseRole(" Sales_Agent ")
	require.NoError(t, err)
	require.Equal(t, rbac.RoleSalesAgent, role)

	_, err = rbac.ParseRole("landlord")
	var verr *rbac.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "role", verr.Field)
}

func TestRoleLabelAndHomePath(t *testing.T) {
	require.Equal(t, "Sales Agent", rbac.RoleSalesAgent.Label())
	require.Equal(t, "Super Admin", rbac.RoleSuperAdmin.Label())
	require.Equal(t, "/admin", rbac.RoleSuperAdmin.HomePath())
	require.Equal(t, "/tenant", rbac.RoleTenant.HomePath())
	require.Equal(t, "/", rbac.Role("x").HomePath())
}

func TestActionValid(t *testing.T) {
	require.True(t, rbac.ActionExport.Valid())
	require.False(t, rbac.Action("approve").Valid())
}
