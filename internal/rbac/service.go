package rbac

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/estatehub/estatehub/internal/shared"
)

// AuditRecorder persists audit entries for mutations.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MutationObserver receives one call per mutation attempt.
type MutationObserver interface {
	ObserveMutation(op, outcome string)
}

// CreatePermissionInput carries the fields of a new permission.
type CreatePermissionInput struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"required,max=500"`
	Module      string `json:"module" validate:"required,max=80"`
	Action      string `json:"action" validate:"required,oneof=create read update delete manage export"`
}

// Snapshot holds both tables as read by two independent queries. A mutation
// landing between them can leave an assignment whose permission is missing;
// BuildMatrix and PermissionNames ignore such rows.
type Snapshot struct {
	Permissions []Permission `json:"permissions"`
	Assignments []Assignment `json:"assignments"`
	LoadedAt    time.Time    `json:"loaded_at"`
}

// Has reports whether role holds the permission in this snapshot.
func (s Snapshot) Has(role Role, permissionID uuid.UUID) bool {
	for _, a := range s.Assignments {
		if a.Role == role && a.PermissionID == permissionID {
			return true
		}
	}
	return false
}

// PermissionNames returns the union of permission names held by roles.
func (s Snapshot) PermissionNames(roles ...Role) []string {
	held := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		held[r] = struct{}{}
	}
	granted := make(map[uuid.UUID]struct{})
	for _, a := range s.Assignments {
		if _, ok := held[a.Role]; ok {
			granted[a.PermissionID] = struct{}{}
		}
	}
	names := make([]string, 0, len(granted))
	for _, p := range s.Permissions {
		if _, ok := granted[p.ID]; ok {
			names = append(names, p.Name)
		}
	}
	return names
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithNotifier sets the change channel. Defaults to a LocalNotifier.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithAudit records every successful mutation.
func WithAudit(a AuditRecorder) ServiceOption {
	return func(s *Service) { s.audit = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithMutationObserver reports mutation outcomes, typically to metrics.
func WithMutationObserver(o MutationObserver) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithClock overrides time.Now for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// Service orchestrates RBAC operations against an injected Store. It holds no
// cached state; see View for that.
type Service struct {
	store    Store
	notifier Notifier
	audit    AuditRecorder
	observer MutationObserver
	logger   *slog.Logger
	validate *validator.Validate
	locks    *pairLocks
	now      func() time.Time
}

// NewService constructs a Service backed by store.
func NewService(store Store, opts ...ServiceOption) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	s := &Service{
		store:    store,
		notifier: NewLocalNotifier(),
		logger:   slog.Default(),
		validate: v,
		locks:    newPairLocks(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListPermissions returns all permissions ordered by module, then insertion.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	perms, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, unavailable("list permissions", err)
	}
	return perms, nil
}

// ListRoleAssignments returns every (role, permission) pair.
func (s *Service) ListRoleAssignments(ctx context.Context) ([]Assignment, error) {
	assignments, err := s.store.ListAssignments(ctx)
	if err != nil {
		return nil, unavailable("list assignments", err)
	}
	return assignments, nil
}

// HasPermission reports whether role currently holds the permission.
func (s *Service) HasPermission(ctx context.Context, role Role, permissionID uuid.UUID) (bool, error) {
	if !role.Valid() {
		return false, &ValidationError{Field: "role", Reason: "unknown role " + string(role)}
	}
	ok, err := s.store.HasAssignment(ctx, role, permissionID)
	if err != nil {
		return false, unavailable("has permission", err)
	}
	return ok, nil
}

// Snapshot loads permissions and assignments concurrently.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		perms, err := s.ListPermissions(gctx)
		snap.Permissions = perms
		return err
	})
	g.Go(func() error {
		assignments, err := s.ListRoleAssignments(gctx)
		snap.Assignments = assignments
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	snap.LoadedAt = s.now()
	return snap, nil
}

// CreatePermission validates and stores a new permission with a fresh id.
func (s *Service) CreatePermission(ctx context.Context, in CreatePermissionInput) (Permission, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Module = strings.TrimSpace(in.Module)
	in.Action = strings.ToLower(strings.TrimSpace(in.Action))
	if err := s.validateInput(in); err != nil {
		s.observe("create_permission", err)
		return Permission{}, err
	}

	perm := Permission{
		ID:          uuid.New(),
		Name:        in.Name,
		Description: in.Description,
		Module:      in.Module,
		Action:      Action(in.Action),
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertPermission(ctx, perm); err != nil {
		if errors.Is(err, ErrDuplicateName) {
			err = &ValidationError{Field: "name", Reason: "already exists"}
		} else {
			err = unavailable("create permission", err)
		}
		s.observe("create_permission", err)
		return Permission{}, err
	}

	s.observe("create_permission", nil)
	s.record(ctx, "permission.create", perm.ID, map[string]any{"name": perm.Name, "module": perm.Module, "action": perm.Action})
	s.publish(ctx, Change{Table: TablePermissions, Kind: ChangeInsert, PermissionID: perm.ID, At: perm.CreatedAt})
	return perm, nil
}

// DeletePermission removes the permission and every assignment referencing it.
func (s *Service) DeletePermission(ctx context.Context, id uuid.UUID) error {
	removed, err := s.store.DeletePermission(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			err = &NotFoundError{PermissionID: id}
		} else {
			err = unavailable("delete permission", err)
		}
		s.observe("delete_permission", err)
		return err
	}

	s.observe("delete_permission", nil)
	s.record(ctx, "permission.delete", id, map[string]any{"assignments_removed": removed})
	s.publish(ctx, Change{Table: TablePermissions, Kind: ChangeDelete, PermissionID: id, At: s.now()})
	return nil
}

// TogglePermission grants the pair when absent and revokes it when present.
// It returns the membership after the toggle. Calls for the same pair are
// serialized within this process.
func (s *Service) TogglePermission(ctx context.Context, role Role, permissionID uuid.UUID) (bool, error) {
	if !role.Valid() {
		err := &ValidationError{Field: "role", Reason: "unknown role " + string(role)}
		s.observe("toggle_permission", err)
		return false, err
	}
	unlock := s.locks.lock(pairKey{role: role, id: permissionID})
	defer unlock()

	at := s.now()
	granted, err := s.store.ToggleAssignment(ctx, role, permissionID, at)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			err = &NotFoundError{PermissionID: permissionID}
		} else {
			err = unavailable("toggle permission", err)
		}
		s.observe("toggle_permission", err)
		return false, err
	}

	kind, action := ChangeDelete, "permission.revoke"
	if granted {
		kind, action = ChangeInsert, "permission.grant"
	}
	s.observe("toggle_permission", nil)
	s.record(ctx, action, permissionID, map[string]any{"role": role})
	s.publish(ctx, Change{Table: TableRolePermissions, Kind: kind, PermissionID: permissionID, Role: role, At: at})
	return granted, nil
}

// ReconcileAssignments removes assignments left behind by a permission that
// no longer exists and returns how many were removed.
func (s *Service) ReconcileAssignments(ctx context.Context) (int, error) {
	removed, err := s.store.PruneOrphanAssignments(ctx)
	if err != nil {
		err = unavailable("reconcile assignments", err)
		s.observe("reconcile", err)
		return 0, err
	}
	s.observe("reconcile", nil)
	if removed > 0 {
		s.publish(ctx, Change{Table: TableRolePermissions, Kind: ChangeDelete, At: s.now()})
	}
	return removed, nil
}

// Subscribe delivers change events to fn until ctx is cancelled.
func (s *Service) Subscribe(ctx context.Context, fn func(Change)) error {
	return s.notifier.Subscribe(ctx, fn)
}

func (s *Service) validateInput(in CreatePermissionInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := "is required"
		switch fe.Tag() {
		case "required":
		case "oneof":
			reason = "must be one of " + fe.Param()
		case "max":
			reason = "must be at most " + fe.Param() + " characters"
		default:
			reason = "failed " + fe.Tag()
		}
		return &ValidationError{Field: fe.Field(), Reason: reason}
	}
	return &ValidationError{Field: "input", Reason: err.Error()}
}

func (s *Service) publish(ctx context.Context, change Change) {
	if err := s.notifier.Publish(ctx, change); err != nil {
		s.logger.Warn("rbac publish change", slog.String("table", change.Table), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, permissionID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actorID(ctx),
		Action:   action,
		Entity:   "permission",
		EntityID: permissionID.String(),
		Meta:     meta,
		At:       s.now(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("rbac audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) observe(op string, err error) {
	if s.observer == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrValidation):
		outcome = "invalid"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	s.observer.ObserveMutation(op, outcome)
}

// pairLocks hands out one mutex per (role, permission) pair and drops it once
// no caller holds or waits on it.
type pairLocks struct {
	mu    sync.Mutex
	locks map[pairKey]*pairLock
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[pairKey]*pairLock)}
}

func (l *pairLocks) lock(key pairKey) func() {
	l.mu.Lock()
	pl, ok := l.locks[key]
	if !ok {
		pl = &pairLock{}
		l.locks[key] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
