package rbac

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role identifies a class of user. The set is closed; use ParseRole for
// untrusted input.
type Role string

const (
	RoleSuperAdmin    Role = "super_admin"
	RoleAdmin         Role = "admin"
	RoleManager       Role = "manager"
	RoleSalesAgent    Role = "sales_agent"
	RolePropertyOwner Role = "property_owner"
	RoleTenant        Role = "tenant"
	RoleSupportStaff  Role = "support_staff"
	RoleAccountant    Role = "accountant"
)

var allRoles = []Role{
	RoleSuperAdmin,
	RoleAdmin,
	RoleManager,
	RoleSalesAgent,
	RolePropertyOwner,
	RoleTenant,
	RoleSupportStaff,
	RoleAccountant,
}

// Roles returns every role in declaration order.
func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// ParseRole converts raw input into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", &ValidationError{Field: "role", Reason: "unknown role " + strings.TrimSpace(raw)}
	}
	return role, nil
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleManager, RoleSalesAgent,
		RolePropertyOwner, RoleTenant, RoleSupportStaff, RoleAccountant:
		return true
	default:
		return false
	}
}

// Label returns a human readable role name, e.g. "Sales Agent".
func (r Role) Label() string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(r), "_", " "))
}

// HomePath is the dashboard a user with this navigation role lands on.
func (r Role) HomePath() string {
	switch r {
	case RoleSuperAdmin, RoleAdmin:
		return "/admin"
	case RoleManager:
		return "/manager"
	case RoleSalesAgent:
		return "/agent"
	case RolePropertyOwner:
		return "/owner"
	case RoleTenant:
		return "/tenant"
	case RoleSupportStaff:
		return "/support"
	case RoleAccountant:
		return "/accountant"
	default:
		return "/"
	}
}

// Action is the verb part of a permission.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
	ActionExport Action = "export"
)

// Valid reports whether a belongs to the closed action set.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage, ActionExport:
		return true
	default:
		return false
	}
}

// Permission represents an atomic capability.
type Permission struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Module      string    `json:"module"`
	Action      Action    `json:"action"`
	CreatedAt   time.Time `json:"created_at"`
}

// Assignment ties a permission to a role.
type Assignment struct {
	Role         Role      `json:"role"`
	PermissionID uuid.UUID `json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal describes the authenticated actor.
type Principal interface {
	PrincipalID() string
	PrincipalRoles() []Role
}
