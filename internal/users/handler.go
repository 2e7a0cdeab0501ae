package users

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/estatehub/estatehub/internal/platform/httpx"
	"github.com/estatehub/estatehub/internal/rbac"
	"github.com/estatehub/estatehub/internal/shared"
)

// Handler manages user role endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersRead, shared.PermUsersManage))
		r.Get("/{id}/roles", h.listRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersManage))
		r.Post("/{id}/roles", h.assignRole)
		r.Delete("/{id}/roles/{role}", h.removeRole)
	})
}

type roleEntry struct {
	Role       rbac.Role `json:"role"`
	Label      string    `json:"label"`
	AssignedAt time.Time `json:"assigned_at"`
}

type rolesResponse struct {
	UserID      uuid.UUID   `json:"user_id"`
	Roles       []roleEntry `json:"roles"`
	PrimaryRole rbac.Role   `json:"primary_role,omitempty"`
	HomePath    string      `json:"home_path"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	h.writeRoles(w, r, id, http.StatusOK)
}

type assignRequest struct {
	Role string `json:"role"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	added, err := h.service.AssignRole(r.Context(), id, role)
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	h.writeRoles(w, r, id, status)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	role, err := rbac.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if _, err := h.service.RemoveRole(r.Context(), id, role); err != nil {
		h.fail(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeRoles(w http.ResponseWriter, r *http.Request, id uuid.UUID, status int) {
	roles, err := h.service.RolesForUser(r.Context(), id)
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	resp := rolesResponse{UserID: id, Roles: make([]roleEntry, 0, len(roles)), HomePath: "/"}
	for _, ur := range roles {
		resp.Roles = append(resp.Roles, roleEntry{Role: ur.Role, Label: ur.Role.Label(), AssignedAt: ur.AssignedAt})
	}
	if primary, ok := Primary(roles); ok {
		resp.PrimaryRole = primary
		resp.HomePath = primary.HomePath()
	}
	httpx.JSON(w, status, resp)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, &rbac.ValidationError{Field: "id", Reason: "must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
