package shared

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatehub/estatehub/internal/platform/httpx"
)

// IdempotencyRetention is how long a processed key blocks a replay.
const IdempotencyRetention = 24 * time.Hour

// ErrIdempotencyConflict indicates the key was already used for the scope.
var ErrIdempotencyConflict = fmt.Errorf("idempotent request already processed: %w", httpx.ErrDuplicate)

// IdempotencyKeys records client supplied keys so a retried mutation is
// applied at most once.
type IdempotencyKeys interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key, scope string) error
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// CheckAndInsert claims key within scope.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, scope string) error {
	if s == nil || s.pool == nil {
		return errors.New("idempotency store not initialised")
	}
	if err := checkKey(key, scope); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, scope, created_at) VALUES ($1, $2, NOW())`, key, scope)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Delete releases a key, typically after the guarded operation failed.
func (s *IdempotencyStore) Delete(ctx context.Context, key, scope string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND scope = $2`, key, scope)
	return err
}

// Cleanup removes entries older than olderThan.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < NOW() - make_interval(secs => $1)`, olderThan.Seconds())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// MemoryIdempotency keeps keys in process for the in-memory mode.
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryIdempotency returns an empty key set.
func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryIdempotency) CheckAndInsert(_ context.Context, key, scope string) error {
	if err := checkKey(key, scope); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := scope + "\x00" + key
	if _, ok := m.keys[id]; ok {
		return ErrIdempotencyConflict
	}
	m.keys[id] = m.now()
	return nil
}

func (m *MemoryIdempotency) Delete(_ context.Context, key, scope string) error {
	m.mu.Lock()
	delete(m.keys, scope+"\x00"+key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryIdempotency) Cleanup(_ context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-olderThan)
	removed := 0
	for id, at := range m.keys {
		if at.Before(cutoff) {
			delete(m.keys, id)
			removed++
		}
	}
	return removed, nil
}

func checkKey(key, scope string) error {
	if key == "" {
		return fmt.Errorf("idempotency key required: %w", httpx.ErrValidation)
	}
	if len(key) > 200 {
		return fmt.Errorf("idempotency key too long: %w", httpx.ErrValidation)
	}
	if scope == "" {
		return errors.New("idempotency scope required")
	}
	return nil
}

var (
	_ IdempotencyKeys = (*IdempotencyStore)(nil)
	_ IdempotencyKeys = (*MemoryIdempotency)(nil)
)
