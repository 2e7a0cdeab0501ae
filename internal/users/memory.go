package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/estatehub/estatehub/internal/rbac"
)

// MemoryRepository keeps users in process memory. Used by test mode and
// single-node deployments without Postgres.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]User
	roles map[uuid.UUID][]UserRole
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[uuid.UUID]User), roles: make(map[uuid.UUID][]UserRole)}
}

func (m *MemoryRepository) FindByEmail(_ context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *MemoryRepository) FindByID(_ context.Context, id uuid.UUID) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryRepository) EnsureUser(_ context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			existing.PasswordHash = u.PasswordHash
			existing.IsActive = true
			existing.UpdatedAt = u.CreatedAt
			m.users[id] = existing
			return existing, nil
		}
	}
	u.Email = strings.ToLower(u.Email)
	u.IsActive = true
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = u
	return u, nil
}

func (m *MemoryRepository) ListRoles(_ context.Context, userID uuid.UUID) ([]UserRole, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]UserRole, len(m.roles[userID]))
	copy(out, m.roles[userID])
	return out, nil
}

func (m *MemoryRepository) AddRole(_ context.Context, userID uuid.UUID, role rbac.Role, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return false, ErrUserNotFound
	}
	for _, ur := range m.roles[userID] {
		if ur.Role == role {
			return false, nil
		}
	}
	roles := append(m.roles[userID], UserRole{UserID: userID, Role: role, AssignedAt: at})
	sort.SliceStable(roles, func(i, j int) bool { return roles[i].AssignedAt.Before(roles[j].AssignedAt) })
	m.roles[userID] = roles
	return true, nil
}

func (m *MemoryRepository) RemoveRole(_ context.Context, userID uuid.UUID, role rbac.Role) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roles := m.roles[userID]
	for i, ur := range roles {
		if ur.Role == role {
			m.roles[userID] = append(roles[:i:i], roles[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

var _ RepositoryPort = (*MemoryRepository)(nil)
