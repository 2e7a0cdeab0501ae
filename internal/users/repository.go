package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatehub/estatehub/internal/platform/db"
	"github.com/estatehub/estatehub/internal/rbac"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id uuid.UUID) (User, error)
	// EnsureUser inserts u unless the email exists and returns the stored row.
	// An existing row gets its password hash refreshed and is reactivated.
	EnsureUser(ctx context.Context, u User) (User, error)
	ListRoles(ctx context.Context, userID uuid.UUID) ([]UserRole, error)
	AddRole(ctx context.Context, userID uuid.UUID, role rbac.Role, at time.Time) (bool, error)
	RemoveRole(ctx context.Context, userID uuid.UUID, role rbac.Role) (bool, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, password_hash, is_active, created_at, updated_at`

// FindByEmail fetches a user by case-insensitive email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

// FindByID fetches a user by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// EnsureUser upserts by email.
func (r *Repository) EnsureUser(ctx context.Context, u User) (User, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO users (id, email, password_hash, is_active, created_at, updated_at)
VALUES ($1, lower($2), $3, TRUE, $4, $4)
ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash, is_active = TRUE, updated_at = EXCLUDED.updated_at
RETURNING `+userColumns, u.ID, u.Email, u.PasswordHash, u.CreatedAt)
	return scanUser(row)
}

// ListRoles returns the user's roles, earliest first.
func (r *Repository) ListRoles(ctx context.Context, userID uuid.UUID) ([]UserRole, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, role::text, assigned_at FROM user_roles WHERE user_id = $1 ORDER BY assigned_at, role`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserRole
	for rows.Next() {
		var ur UserRole
		var role string
		if err := rows.Scan(&ur.UserID, &role, &ur.AssignedAt); err != nil {
			return nil, err
		}
		ur.Role = rbac.Role(role)
		out = append(out, ur)
	}
	return out, rows.Err()
}

// AddRole assigns role and reports whether it was newly added.
func (r *Repository) AddRole(ctx context.Context, userID uuid.UUID, role rbac.Role, at time.Time) (bool, error) {
	var added bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrUserNotFound
		}
		tag, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role, assigned_at) VALUES ($1, $2::app_role, $3) ON CONFLICT DO NOTHING`, userID, string(role), at)
		if err != nil {
			return err
		}
		added = tag.RowsAffected() == 1
		return nil
	})
	return added, err
}

// RemoveRole deletes the assignment and reports whether it existed.
func (r *Repository) RemoveRole(ctx context.Context, userID uuid.UUID, role rbac.Role) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role = $2::app_role`, userID, string(role))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

var _ RepositoryPort = (*Repository)(nil)
