package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/estatehub/estatehub/internal/platform/httpx"
	"github.com/estatehub/estatehub/internal/rbac"
	"github.com/estatehub/estatehub/internal/shared"
)

// loginAttemptsPerMinute caps login attempts per client IP.
const loginAttemptsPerMinute = 10

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	view      *rbac.View
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, view *rbac.View) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, view: view, validator: validator.New()}
}

// MountRoutes registers the public auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.Limit(loginAttemptsPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).Post("/login", h.handleLogin)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

type meResponse struct {
	*Identity
	HomePath    string   `json:"home_path"`
	Permissions []string `json:"permissions"`
}

// Me describes the authenticated caller. Mount behind Middleware.Authenticate.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	resp := meResponse{Identity: identity, HomePath: "/", Permissions: []string{}}
	if identity.PrimaryRole != "" {
		resp.HomePath = identity.PrimaryRole.HomePath()
	}
	if len(identity.Roles) > 0 {
		snap, err := h.view.Current(r.Context())
		if err != nil {
			h.logger.Error("load permissions for identity", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		resp.Permissions = snap.PermissionNames(identity.Roles...)
	}
	httpx.JSON(w, http.StatusOK, resp)
}
