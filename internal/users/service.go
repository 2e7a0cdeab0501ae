package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/estatehub/estatehub/internal/platform/httpx"
	"github.com/estatehub/estatehub/internal/rbac"
	"github.com/estatehub/estatehub/internal/shared"
)

// AuditRecorder persists audit entries for role changes.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user and role business logic.
type Service struct {
	repo     RepositoryPort
	audit    AuditRecorder
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
	cost     int
}

// Option configures the Service.
type Option func(*Service)

// WithAudit records role changes.
func WithAudit(a AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHashCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		logger:   slog.Default(),
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindByEmail looks up a user for sign-in.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.FindByEmail(ctx, strings.TrimSpace(email))
}

// RolesForUser returns the user's roles ordered by assignment time.
func (s *Service) RolesForUser(ctx context.Context, userID uuid.UUID) ([]UserRole, error) {
	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListRoles(ctx, userID)
}

// ResolveRoles returns the roles of an active user, earliest first. It backs
// request authentication.
func (s *Service) ResolveRoles(ctx context.Context, userID string) ([]rbac.Role, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInactive
	}
	assigned, err := s.repo.ListRoles(ctx, id)
	if err != nil {
		return nil, err
	}
	roles := make([]rbac.Role, 0, len(assigned))
	for _, ur := range assigned {
		roles = append(roles, ur.Role)
	}
	return roles, nil
}

// PrimaryRole returns the user's earliest assigned role.
func (s *Service) PrimaryRole(ctx context.Context, userID uuid.UUID) (rbac.Role, bool, error) {
	roles, err := s.RolesForUser(ctx, userID)
	if err != nil {
		return "", false, err
	}
	role, ok := Primary(roles)
	return role, ok, nil
}

// AssignRole grants role to the user. Assigning a held role is a no-op.
func (s *Service) AssignRole(ctx context.Context, userID uuid.UUID, role rbac.Role) (bool, error) {
	if !role.Valid() {
		return false, &rbac.ValidationError{Field: "role", Reason: "unknown role " + string(role)}
	}
	added, err := s.repo.AddRole(ctx, userID, role, s.now())
	if err != nil {
		return false, err
	}
	if added {
		s.record(ctx, "user_role.assign", userID, role)
	}
	return added, nil
}

// RemoveRole revokes role from the user. Removing a role not held is a no-op.
func (s *Service) RemoveRole(ctx context.Context, userID uuid.UUID, role rbac.Role) (bool, error) {
	if !role.Valid() {
		return false, &rbac.ValidationError{Field: "role", Reason: "unknown role " + string(role)}
	}
	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		return false, err
	}
	removed, err := s.repo.RemoveRole(ctx, userID, role)
	if err != nil {
		return false, err
	}
	if removed {
		s.record(ctx, "user_role.remove", userID, role)
	}
	return removed, nil
}

type bootstrapInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8,max=72"`
}

// BootstrapAdmin creates or refreshes an active account holding super_admin.
func (s *Service) BootstrapAdmin(ctx context.Context, email, password string) (User, error) {
	in := bootstrapInput{Email: strings.ToLower(strings.TrimSpace(email)), Password: password}
	if err := s.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return User{}, &rbac.ValidationError{Field: strings.ToLower(fieldErrs[0].Field()), Reason: "failed " + fieldErrs[0].Tag()}
		}
		return User{}, fmt.Errorf("users: %w", httpx.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	now := s.now()
	u, err := s.repo.EnsureUser(ctx, User{ID: uuid.New(), Email: in.Email, PasswordHash: string(hash), IsActive: true, CreatedAt: now})
	if err != nil {
		return User{}, err
	}
	if _, err := s.AssignRole(ctx, u.ID, rbac.RoleSuperAdmin); err != nil {
		return User{}, err
	}
	s.logger.Info("admin bootstrapped", slog.String("user_id", u.ID.String()))
	return u, nil
}

func (s *Service) record(ctx context.Context, action string, userID uuid.UUID, role rbac.Role) {
	if s.audit == nil {
		return
	}
	actor := ""
	if p, ok := rbac.PrincipalFromContext(ctx); ok {
		actor = p.PrincipalID()
	}
	entry := shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "user",
		EntityID: userID.String(),
		Meta:     map[string]any{"role": role},
		At:       s.now(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("users audit record", slog.String("action", action), slog.Any("error", err))
	}
}
