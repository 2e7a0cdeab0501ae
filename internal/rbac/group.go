package rbac

import "github.com/google/uuid"

// ModuleGroup holds the permissions sharing one module label.
type ModuleGroup struct {
	Module      string       `json:"module"`
	Permissions []Permission `json:"permissions"`
}

// GroupByModule groups permissions by module. Groups appear in first-seen
// order and each group keeps the input order of its permissions.
func GroupByModule(perms []Permission) []ModuleGroup {
	groups := make([]ModuleGroup, 0)
	index := make(map[string]int)
	for _, p := range perms {
		pos, ok := index[p.Module]
		if !ok {
			pos = len(groups)
			index[p.Module] = pos
			groups = append(groups, ModuleGroup{Module: p.Module})
		}
		groups[pos].Permissions = append(groups[pos].Permissions, p)
	}
	return groups
}

// MatrixRow is one permission with a flag per role.
type MatrixRow struct {
	Permission Permission    `json:"permission"`
	Granted    map[Role]bool `json:"granted"`
}

// MatrixGroup is a module section of the permission matrix.
type MatrixGroup struct {
	Module string      `json:"module"`
	Rows   []MatrixRow `json:"rows"`
}

// Matrix is the role x permission grid rendered by the admin screen.
type Matrix struct {
	Roles  []Role        `json:"roles"`
	Groups []MatrixGroup `json:"groups"`
}

// BuildMatrix lays a snapshot out as module groups of per-role flags.
func BuildMatrix(snap Snapshot) Matrix {
	granted := make(map[uuid.UUID]map[Role]bool, len(snap.Permissions))
	for _, a := range snap.Assignments {
		flags, ok := granted[a.PermissionID]
		if !ok {
			flags = make(map[Role]bool)
			granted[a.PermissionID] = flags
		}
		flags[a.Role] = true
	}
	roles := Roles()
	m := Matrix{Roles: roles}
	for _, g := range GroupByModule(snap.Permissions) {
		mg := MatrixGroup{Module: g.Module, Rows: make([]MatrixRow, 0, len(g.Permissions))}
		for _, p := range g.Permissions {
			row := MatrixRow{Permission: p, Granted: make(map[Role]bool, len(roles))}
			for _, r := range roles {
				row.Granted[r] = granted[p.ID][r]
			}
			mg.Rows = append(mg.Rows, row)
		}
		m.Groups = append(m.Groups, mg)
	}
	return m
}
