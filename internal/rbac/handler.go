package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/estatehub/estatehub/internal/platform/httpx"
	"github.com/estatehub/estatehub/internal/shared"
)

// Handler exposes the permission matrix over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	view      *View
	validator *validator.Validate
	rbac      Middleware
	origins   []string
	keys      IdempotencyKeys
}

// IdempotencyKeys claims Idempotency-Key header values for mutations.
type IdempotencyKeys interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key, scope string) error
}

// idempotencyHeader carries a client key for create and toggle retries.
const idempotencyHeader = "Idempotency-Key"

// NewHandler builds Handler instance. origins restricts websocket upgrades;
// empty means same-origin only.
func NewHandler(logger *slog.Logger, service *Service, view *View, rbac Middleware, origins []string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, view: view, validator: validator.New(), rbac: rbac, origins: origins}
}

// WithIdempotency makes create and toggle honour the Idempotency-Key header.
func (h *Handler) WithIdempotency(keys IdempotencyKeys) *Handler {
	h.keys = keys
	return h
}

// MountRoutes registers access-control routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles", h.listRoles)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPermissionsRead, shared.PermPermissionsManage))
		r.Get("/permissions", h.listPermissions)
		r.Get("/permissions/grouped", h.groupedPermissions)
		r.Get("/assignments", h.listAssignments)
		r.Get("/matrix", h.matrix)
		r.Get("/check", h.check)
		r.Get("/stream", h.stream)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPermissionsManage))
		r.Post("/permissions", h.createPermission)
		r.Delete("/permissions/{id}", h.deletePermission)
		r.Post("/assignments/toggle", h.toggle)
	})
}

type roleView struct {
	Role     Role   `json:"role"`
	Label    string `json:"label"`
	HomePath string `json:"home_path"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles := Roles()
	out := make([]roleView, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleView{Role: role, Label: role.Label(), HomePath: role.HomePath()})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": nonNil(perms)})
}

func (h *Handler) groupedPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, "group permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": GroupByModule(perms)})
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.service.ListRoleAssignments(r.Context())
	if err != nil {
		h.fail(w, "list assignments", err)
		return
	}
	if assignments == nil {
		assignments = []Assignment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}

// matrix always reads through the store so an admin sees the authoritative
// state right after a mutation.
func (h *Handler) matrix(w http.ResponseWriter, r *http.Request) {
	snap, err := h.view.Refresh(r.Context())
	if err != nil {
		h.fail(w, "load matrix", err)
		return
	}
	httpx.JSON(w, http.StatusOK, BuildMatrix(snap))
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := parsePermissionID(r.URL.Query().Get("permission_id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ok, err := h.service.HasPermission(r.Context(), role, id)
	if err != nil {
		h.fail(w, "check permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": role, "permission_id": id, "granted": ok})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req CreatePermissionInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	release, ok := h.claim(w, r, "access.create_permission")
	if !ok {
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req)
	if err != nil {
		release()
		h.fail(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := parsePermissionID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		h.fail(w, "delete permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type toggleRequest struct {
	Role         string `json:"role" validate:"required"`
	PermissionID string `json:"permission_id" validate:"required,uuid"`
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := parsePermissionID(req.PermissionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	release, ok := h.claim(w, r, "access.toggle")
	if !ok {
		return
	}
	granted, err := h.service.TogglePermission(r.Context(), role, id)
	if err != nil {
		release()
		h.fail(w, "toggle permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": role, "permission_id": id, "granted": granted})
}

// claim reserves the request's idempotency key. The returned func releases it
// so a failed mutation can be retried with the same key.
func (h *Handler) claim(w http.ResponseWriter, r *http.Request, scope string) (func(), bool) {
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if h.keys == nil || key == "" {
		return func() {}, true
	}
	if err := h.keys.CheckAndInsert(r.Context(), key, scope); err != nil {
		if !errors.Is(err, httpx.ErrDuplicate) && !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("claim idempotency key", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return nil, false
	}
	return func() {
		if err := h.keys.Delete(context.WithoutCancel(r.Context()), key, scope); err != nil {
			h.logger.Warn("release idempotency key", slog.Any("error", err))
		}
	}, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrStoreUnavailable) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parsePermissionID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &ValidationError{Field: "permission_id", Reason: "must be a UUID"}
	}
	return id, nil
}

func nonNil(perms []Permission) []Permission {
	if perms == nil {
		return []Permission{}
	}
	return perms
}
