package rbac

import (
	"net/http"
	"strings"

	"log/slog"

	"github.com/estatehub/estatehub/internal/platform/httpx"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. Effective
// permissions are the union over every role the principal holds.
type Middleware struct {
	View   *View
	Logger *slog.Logger
}

// RequireAny ensures the current principal has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAnyPermission, "rbac require any")
}

// RequireAll ensures the current principal has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAllPermissions, "rbac require all")
}

func (m Middleware) require(normalized []string, check func(granted, required []string) bool, logMsg string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			roles := principal.PrincipalRoles()
			if isSuperAdmin(roles) {
				next.ServeHTTP(w, r)
				return
			}
			snap, err := m.View.Current(r.Context())
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error(logMsg, slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if check(snap.PermissionNames(roles...), normalized) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

func isSuperAdmin(roles []Role) bool {
	for _, r := range roles {
		if r == RoleSuperAdmin {
			return true
		}
	}
	return false
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
