package shared

// Core platform permissions.
const (
	PermUsersRead   = "users.read"
	PermUsersManage = "users.manage"

	PermPermissionsRead   = "permissions.read"
	PermPermissionsManage = "permissions.manage"
)

// PermissionSeed describes a catalog permission created on first boot.
type PermissionSeed struct {
	Name        string
	Description string
	Module      string
	Action      string
}

// CoreCatalog lists the permissions guarding the platform itself.
func CoreCatalog() []PermissionSeed {
	return []PermissionSeed{
		{PermUsersRead, "View users and their roles", "Users", "read"},
		{PermUsersManage, "Assign and remove user roles", "Users", "manage"},
		{PermPermissionsRead, "View the permission matrix", "Permissions", "read"},
		{PermPermissionsManage, "Create, delete and toggle permissions", "Permissions", "manage"},
	}
}
