package rbac

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type pairKey struct {
	role Role
	id   uuid.UUID
}

// MemoryStore keeps permissions and assignments in process. It backs the
// ACCESS_STORE=memory mode and the package tests.
type MemoryStore struct {
	mu          sync.RWMutex
	permissions []Permission
	assignments []Assignment
	index       map[pairKey]int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[pairKey]int)}
}

func (s *MemoryStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	s.mu.RLock()
	out := make([]Permission, len(s.permissions))
	copy(out, s.permissions)
	s.mu.RUnlock()
	// Byte order, matching COLLATE "C" in PGStore.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Module < out[j].Module })
	return out, nil
}

func (s *MemoryStore) ListAssignments(ctx context.Context) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Assignment, len(s.assignments))
	copy(out, s.assignments)
	return out, nil
}

func (s *MemoryStore) HasAssignment(ctx context.Context, role Role, permissionID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[pairKey{role: role, id: permissionID}]
	return ok, nil
}

func (s *MemoryStore) InsertPermission(ctx context.Context, perm Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.permissions {
		if existing.Name == perm.Name {
			return ErrDuplicateName
		}
	}
	s.permissions = append(s.permissions, perm)
	return nil
}

func (s *MemoryStore) DeletePermission(ctx context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := s.permissionIndex(id)
	if pos < 0 {
		return 0, ErrNotFound
	}
	s.permissions = append(s.permissions[:pos], s.permissions[pos+1:]...)
	return s.retainAssignments(func(a Assignment) bool { return a.PermissionID != id }), nil
}

func (s *MemoryStore) ToggleAssignment(ctx context.Context, role Role, permissionID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permissionIndex(permissionID) < 0 {
		return false, ErrNotFound
	}
	key := pairKey{role: role, id: permissionID}
	if _, ok := s.index[key]; ok {
		s.retainAssignments(func(a Assignment) bool { return a.Role != role || a.PermissionID != permissionID })
		return false, nil
	}
	s.assignments = append(s.assignments, Assignment{Role: role, PermissionID: permissionID, CreatedAt: at})
	s.index[key] = len(s.assignments) - 1
	return true, nil
}

func (s *MemoryStore) PruneOrphanAssignments(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := make(map[uuid.UUID]struct{}, len(s.permissions))
	for _, p := range s.permissions {
		known[p.ID] = struct{}{}
	}
	return s.retainAssignments(func(a Assignment) bool {
		_, ok := known[a.PermissionID]
		return ok
	}), nil
}

// seedAssignment inserts an assignment without checking that the permission
// exists.
func (s *MemoryStore) seedAssignment(a Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = append(s.assignments, a)
	s.index[pairKey{role: a.Role, id: a.PermissionID}] = len(s.assignments) - 1
}

func (s *MemoryStore) permissionIndex(id uuid.UUID) int {
	for i, p := range s.permissions {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// retainAssignments keeps assignments matching keep, rebuilds the index and
// returns the number removed. Callers hold the write lock.
func (s *MemoryStore) retainAssignments(keep func(Assignment) bool) int {
	kept := s.assignments[:0]
	removed := 0
	for _, a := range s.assignments {
		if keep(a) {
			kept = append(kept, a)
			continue
		}
		removed++
	}
	s.assignments = kept
	s.index = make(map[pairKey]int, len(kept))
	for i, a := range kept {
		s.index[pairKey{role: a.Role, id: a.PermissionID}] = i
	}
	return removed
}

var _ Store = (*MemoryStore)(nil)
