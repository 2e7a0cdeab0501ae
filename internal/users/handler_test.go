package users_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/estatehub/estatehub/internal/rbac"
	"github.com/estatehub/estatehub/internal/shared"
	"github.com/estatehub/estatehub/internal/users"
)

type principal struct {
	id    string
	roles []rbac.Role
}

func (p principal) PrincipalID() string { return p.id }
func (p principal) PrincipalRoles() []rbac.Role { return p.roles }

type fixture struct {
	router http.Handler
	repo   *users.MemoryRepository
	user   users.User
}

func newFixture(t *testing.T, as principal) fixture {
	t.Helper()
	ctx := context.Background()

	accessSvc := rbac.NewService(rbac.NewMemoryStore())
	read, err := accessSvc.CreatePermission(ctx, rbac.CreatePermissionInput{Name: shared.PermUsersRead, Description: "View users", Module: "Users", Action: "read"})
	require.NoError(t, err)
	_, err = accessSvc.TogglePermission(ctx, rbac.RoleManager, read.ID)
	require.NoError(t, err)

	repo := users.NewMemoryRepository()
	u, err := repo.EnsureUser(ctx, users.User{ID: uuid.New(), Email: "tenant@estatehub.test", CreatedAt: time.Now()})
	require.NoError(t, err)

	handler := users.NewHandler(nil, users.NewService(repo), rbac.Middleware{View: rbac.NewView(accessSvc, nil)})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.ContextWithPrincipal(req.Context(), as)))
		})
	})
	r.Route("/users", handler.MountRoutes)
	return fixture{router: r, repo: repo, user: u}
}

func (f fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestAssignListAndRemoveRoles(t *testing.T) {
	f := newFixture(t, principal{id: "admin", roles: []rbac.Role{rbac.RoleSuperAdmin}})
	path := "/users/" + f.user.ID.String() + "/roles"

	rr := f.do(http.MethodPost, path, `{"role":"tenant"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = f.do(http.MethodPost, path, `{"role":"tenant"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Roles []struct {
			Role  string `json:"role"`
			Label string `json:"label"`
		} `json:"roles"`
		PrimaryRole string `json:"primary_role"`
		HomePath    string `json:"home_path"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Roles, 1)
	require.Equal(t, "Tenant", body.Roles[0].Label)
	require.Equal(t, "tenant", body.PrimaryRole)
	require.Equal(t, "/tenant", body.HomePath)

	rr = f.do(http.MethodDelete, path+"/tenant", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = f.do(http.MethodDelete, path+"/tenant", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRoleEndpointsValidateInput(t *testing.T) {
	f := newFixture(t, principal{id: "admin", roles: []rbac.Role{rbac.RoleSuperAdmin}})

	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/users/nope/roles", "").Code)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/users/"+f.user.ID.String()+"/roles", `{"role":"landlord"}`).Code)
	require.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/users/"+uuid.NewString()+"/roles", "").Code)
}

func TestRoleEndpointsEnforcePermissions(t *testing.T) {
	f := newFixture(t, principal{id: "mgr", roles: []rbac.Role{rbac.RoleManager}})
	path := "/users/" + f.user.ID.String() + "/roles"

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, path, "").Code)
	require.Equal(t, http.StatusForbidden, f.do(http.MethodPost, path, `{"role":"tenant"}`).Code)

	tenant := newFixture(t, principal{id: "t", roles: []rbac.Role{rbac.RoleTenant}})
	require.Equal(t, http.StatusForbidden, tenant.do(http.MethodGet, "/users/"+tenant.user.ID.String()+"/roles", "").Code)
}
