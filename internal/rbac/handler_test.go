package rbac_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/estatehub/estatehub/internal/rbac"
	"github.com/estatehub/estatehub/internal/shared"
)

type handlerFixture struct {
	server  *httptest.Server
	service *rbac.Service
}

func newHandlerFixture(t *testing.T, as rbac.Principal) *handlerFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := newService(t)
	for _, name := range []string{shared.PermPermissionsRead, shared.PermPermissionsManage} {
		action := "read"
		if name == shared.PermPermissionsManage {
			action = "manage"
		}
		p := createPermission(t, svc, name, "Permissions", action)
		_, err := svc.TogglePermission(ctx, rbac.RoleAdmin, p.ID)
		require.NoError(t, err)
		if action == "read" {
			_, err = svc.TogglePermission(ctx, rbac.RoleManager, p.ID)
			require.NoError(t, err)
		}
	}
	view := rbac.NewView(svc, nil)
	require.NoError(t, view.Run(ctx))
	h := rbac.NewHandler(nil, svc, view, rbac.Middleware{View: view}, nil)

	f := &handlerFixture{service: svc}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if as != nil {
				req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), as))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/access", h.MountRoutes)
	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

var adminPrincipal = principal{id: "admin-1", roles: []rbac.Role{rbac.RoleAdmin}}

func TestHandlerListsRolesAndPermissions(t *testing.T) {
	f := newHandlerFixture(t, adminPrincipal)

	code, body := f.do(t, http.MethodGet, "/access/roles", "")
	require.Equal(t, http.StatusOK, code)
	roles := body["roles"].([]any)
	require.Len(t, roles, 8)
	require.Equal(t, "Super Admin", roles[0].(map[string]any)["label"])

	code, body = f.do(t, http.MethodGet, "/access/permissions", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["permissions"], 2)

	code, body = f.do(t, http.MethodGet, "/access/permissions/grouped", "")
	require.Equal(t, http.StatusOK, code)
	groups := body["groups"].([]any)
	require.Len(t, groups, 1)
	require.Equal(t, "Permissions", groups[0].(map[string]any)["module"])

	code, body = f.do(t, http.MethodGet, "/access/assignments", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["assignments"], 3)

	code, body = f.do(t, http.MethodGet, "/access/matrix", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["roles"], 8)
}

func TestHandlerCreateToggleDelete(t *testing.T) {
	f := newHandlerFixture(t, adminPrincipal)

	code, created := f.do(t, http.MethodPost, "/access/permissions", `{"name":"view_reports","description":"See reports","module":"Reports","action":"read"}`)
	require.Equal(t, http.StatusCreated, code)
	id := created["id"].(string)

	code, body := f.do(t, http.MethodPost, "/access/assignments/toggle", `{"role":"manager","permission_id":"`+id+`"}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["granted"])

	code, body = f.do(t, http.MethodGet, "/access/check?role=manager&permission_id="+id, "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["granted"])

	code, _ = f.do(t, http.MethodDelete, "/access/permissions/"+id, "")
	require.Equal(t, http.StatusNoContent, code)

	code, body = f.do(t, http.MethodGet, "/access/check?role=manager&permission_id="+id, "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, false, body["granted"])

	code, body = f.do(t, http.MethodDelete, "/access/permissions/"+id, "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "Not Found", body["title"])
}

func TestHandlerRejectsBadInput(t *testing.T) {
	f := newHandlerFixture(t, adminPrincipal)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"malformed json", http.MethodPost, "/access/permissions", `{"name":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/access/permissions", `{"name":"a","extra":1}`, http.StatusBadRequest},
		{"empty name", http.MethodPost, "/access/permissions", `{"name":"","description":"d","module":"M","action":"read"}`, http.StatusBadRequest},
		{"unknown role", http.MethodPost, "/access/assignments/toggle", `{"role":"janitor","permission_id":"` + uuid.NewString() + `"}`, http.StatusBadRequest},
		{"bad permission id", http.MethodPost, "/access/assignments/toggle", `{"role":"tenant","permission_id":"nope"}`, http.StatusBadRequest},
		{"missing permission", http.MethodPost, "/access/assignments/toggle", `{"role":"tenant","permission_id":"` + uuid.NewString() + `"}`, http.StatusNotFound},
		{"bad delete id", http.MethodDelete, "/access/permissions/nope", "", http.StatusBadRequest},
		{"bad check role", http.MethodGet, "/access/check?role=x&permission_id=" + uuid.NewString(), "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := f.do(t, tc.method, tc.path, tc.body)
			require.Equal(t, tc.code, code)
		})
	}

	perms, err := f.service.ListPermissions(context.Background())
	require.NoError(t, err)
	require.Len(t, perms, 2)
}

func TestHandlerEnforcesPermissions(t *testing.T) {
	manager := newHandlerFixture(t, principal{id: "mgr", roles: []rbac.Role{rbac.RoleManager}})
	code, _ := manager.do(t, http.MethodGet, "/access/permissions", "")
	require.Equal(t, http.StatusOK, code)
	code, _ = manager.do(t, http.MethodPost, "/access/permissions", `{"name":"x","description":"d","module":"M","action":"read"}`)
	require.Equal(t, http.StatusForbidden, code)

	tenant := newHandlerFixture(t, principal{id: "tenant", roles: []rbac.Role{rbac.RoleTenant}})
	code, _ = tenant.do(t, http.MethodGet, "/access/matrix", "")
	require.Equal(t, http.StatusForbidden, code)
	code, _ = tenant.do(t, http.MethodGet, "/access/roles", "")
	require.Equal(t, http.StatusOK, code)

	anonymous := newHandlerFixture(t, nil)
	code, _ = anonymous.do(t, http.MethodGet, "/access/permissions", "")
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestHandlerStreamsChanges(t *testing.T) {
	f := newHandlerFixture(t, adminPrincipal)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/access/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var msg map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	require.Equal(t, "ready", msg["type"])

	p := createPermission(t, f.service, "view_messages", "Messages", "read")

	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	require.Equal(t, "change", msg["type"])
	change := msg["change"].(map[string]any)
	require.Equal(t, rbac.TablePermissions, change["table"])
	require.Equal(t, p.ID.String(), change["permission_id"])

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
}

func TestHandlerIdempotentToggle(t *testing.T) {
	svc := newService(t)
	view := rbac.NewView(svc, nil)
	p := createPermission(t, svc, "view_properties", "Properties", "read")
	h := rbac.NewHandler(nil, svc, view, rbac.Middleware{View: view}, nil).WithIdempotency(shared.NewMemoryIdempotency())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.ContextWithPrincipal(req.Context(), principal{id: "root", roles: []rbac.Role{rbac.RoleSuperAdmin}})))
		})
	})
	r.Route("/access", h.MountRoutes)

	toggle := func(key, id string) int {
		req := httptest.NewRequest(http.MethodPost, "/access/assignments/toggle", strings.NewReader(`{"role":"tenant","permission_id":"`+id+`"}`))
		req.Header.Set("Idempotency-Key", key)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusOK, toggle("k-1", p.ID.String()))
	require.Equal(t, http.StatusConflict, toggle("k-1", p.ID.String()))

	ok, err := svc.HasPermission(context.Background(), rbac.RoleTenant, p.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// A failed toggle releases its key.
	missing := uuid.NewString()
	require.Equal(t, http.StatusNotFound, toggle("k-2", missing))
	require.Equal(t, http.StatusOK, toggle("k-2", p.ID.String()))

	ok, err = svc.HasPermission(context.Background(), rbac.RoleTenant, p.ID)
	require.NoError(t, err)
	require.False(t, ok)
}
