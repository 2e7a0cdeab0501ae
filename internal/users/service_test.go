package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/estatehub/estatehub/internal/platform/httpx"
	"github.com/estatehub/estatehub/internal/rbac"
	"github.com/estatehub/estatehub/internal/shared"
)

type auditStub struct {
	entries []shared.AuditLog
}

func (a *auditStub) Record(_ context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

type tickingClock struct {
	t time.Time
}

func (c *tickingClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestService(t *testing.T) (*Service, *MemoryRepository, *auditStub) {
	t.Helper()
	repo := NewMemoryRepository()
	audit := &auditStub{}
	clock := &tickingClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewService(repo, WithAudit(audit), WithClock(clock.now), WithHashCost(bcrypt.MinCost)), repo, audit
}

func TestBootstrapAdminCreatesSuperAdmin(t *testing.T) {
	svc, _, audit := newTestService(t)
	ctx := context.Background()

	u, err := svc.BootstrapAdmin(ctx, "  Admin@EstateHub.test ", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, "admin@estatehub.test", u.Email)
	require.True(t, u.IsActive)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret-pass")))

	roles, err := svc.ResolveRoles(ctx, u.ID.String())
	require.NoError(t, err)
	require.Equal(t, []rbac.Role{rbac.RoleSuperAdmin}, roles)
	require.Len(t, audit.entries, 1)
	require.Equal(t, "user_role.assign", audit.entries[0].Action)

	again, err := svc.BootstrapAdmin(ctx, "admin@estatehub.test", "another-pass")
	require.NoError(t, err)
	require.Equal(t, u.ID, again.ID)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(again.PasswordHash), []byte("another-pass")))
	require.Len(t, audit.entries, 1)
}

func TestBootstrapAdminValidatesInput(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.BootstrapAdmin(context.Background(), "admin@estatehub.test", "short")
	require.ErrorIs(t, err, httpx.ErrValidation)
	var verr *rbac.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "password", verr.Field)

	_, err = svc.BootstrapAdmin(context.Background(), "not-an-email", "long-enough")
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestPrimaryRoleIsEarliestAssigned(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	u, err := repo.EnsureUser(ctx, User{ID: uuid.New(), Email: "owner@estatehub.test", CreatedAt: time.Now()})
	require.NoError(t, err)

	_, ok, err := svc.PrimaryRole(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, ok)

	for _, role := range []rbac.Role{rbac.RolePropertyOwner, rbac.RoleTenant, rbac.RoleAdmin} {
		added, err := svc.AssignRole(ctx, u.ID, role)
		require.NoError(t, err)
		require.True(t, added)
	}

	primary, ok, err := svc.PrimaryRole(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rbac.RolePropertyOwner, primary)
	require.Equal(t, "/owner", primary.HomePath())

	roles, err := svc.ResolveRoles(ctx, u.ID.String())
	require.NoError(t, err)
	require.Equal(t, []rbac.Role{rbac.RolePropertyOwner, rbac.RoleTenant, rbac.RoleAdmin}, roles)
}

func TestAssignAndRemoveRoleAreIdempotent(t *testing.T) {
	svc, repo, audit := newTestService(t)
	ctx := context.Background()
	u, err := repo.EnsureUser(ctx, User{ID: uuid.New(), Email: "agent@estatehub.test", CreatedAt: time.Now()})
	require.NoError(t, err)

	added, err := svc.AssignRole(ctx, u.ID, rbac.RoleSalesAgent)
	require.NoError(t, err)
	require.True(t, added)
	added, err = svc.AssignRole(ctx, u.ID, rbac.RoleSalesAgent)
	require.NoError(t, err)
	require.False(t, added)

	removed, err := svc.RemoveRole(ctx, u.ID, rbac.RoleSalesAgent)
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = svc.RemoveRole(ctx, u.ID, rbac.RoleSalesAgent)
	require.NoError(t, err)
	require.False(t, removed)

	require.Len(t, audit.entries, 2)
}

func TestRoleChangesRejectUnknownInputs(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AssignRole(ctx, uuid.New(), rbac.Role("landlord"))
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.AssignRole(ctx, uuid.New(), rbac.RoleTenant)
	require.ErrorIs(t, err, ErrUserNotFound)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	_, err = svc.ResolveRoles(ctx, "not-a-uuid")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestResolveRolesRejectsInactiveUser(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	u, err := repo.EnsureUser(ctx, User{ID: uuid.New(), Email: "gone@estatehub.test", CreatedAt: time.Now()})
	require.NoError(t, err)

	repo.mu.Lock()
	stored := repo.users[u.ID]
	stored.IsActive = false
	repo.users[u.ID] = stored
	repo.mu.Unlock()

	_, err = svc.ResolveRoles(ctx, u.ID.String())
	require.ErrorIs(t, err, ErrInactive)
}
