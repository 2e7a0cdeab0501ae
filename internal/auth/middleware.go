package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/estatehub/estatehub/internal/platform/httpx"
	"github.com/estatehub/estatehub/internal/rbac"
)

// RoleResolver returns the roles of an active user, earliest first.
type RoleResolver interface {
	ResolveRoles(ctx context.Context, userID string) ([]rbac.Role, error)
}

// Middleware authenticates bearer tokens.
type Middleware struct {
	Tokens *TokenService
	Roles  RoleResolver
	Logger *slog.Logger
}

// Authenticate rejects requests without a valid access token and stores the
// caller's Identity in the request context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractToken(r)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		claims, err := m.Tokens.Verify(token)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		roles, err := m.Roles.ResolveRoles(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, httpx.ErrNotFound) || errors.Is(err, httpx.ErrForbidden) {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "account not available")
				return
			}
			m.logger().Error("resolve roles", slog.String("user_id", claims.UserID), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		identity := &Identity{UserID: claims.UserID, Email: claims.Email, Roles: roles}
		if len(roles) > 0 {
			identity.PrimaryRole = roles[0]
		}
		next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), identity)))
	})
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// extractToken reads the Authorization header. Browsers cannot set headers on
// websocket upgrades, so GET requests may pass access_token instead.
func extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if r.Method == http.MethodGet {
			if token := r.URL.Query().Get("access_token"); token != "" {
				return token, nil
			}
		}
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}
