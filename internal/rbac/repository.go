package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatehub/estatehub/internal/platform/db"
)

const uniqueViolation = "23505"

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description, module, action, created_at FROM permissions ORDER BY module COLLATE "C", seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		var action string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Module, &action, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Action = Action(action)
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *PGStore) ListAssignments(ctx context.Context) ([]Assignment, error) {
	rows, err := s.pool.Query(ctx, `SELECT role::text, permission_id, created_at FROM role_permissions ORDER BY created_at, role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []Assignment
	for rows.Next() {
		var a Assignment
		var role string
		if err := rows.Scan(&role, &a.PermissionID, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Role = Role(role)
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (s *PGStore) HasAssignment(ctx context.Context, role Role, permissionID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM role_permissions WHERE role = $1::app_role AND permission_id = $2)`,
		string(role), permissionID,
	).Scan(&exists)
	return exists, err
}

func (s *PGStore) InsertPermission(ctx context.Context, perm Permission) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO permissions (id, name, description, module, action, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		perm.ID, perm.Name, perm.Description, perm.Module, string(perm.Action), perm.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateName
		}
		return err
	}
	return nil
}

// DeletePermission removes assignments explicitly before the permission row so
// the cascade holds even where the foreign key was created without one.
func (s *PGStore) DeletePermission(ctx context.Context, id uuid.UUID) (int, error) {
	var removed int
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = $1`, id)
		if err != nil {
			return err
		}
		removed = int(tag.RowsAffected())
		tag, err = tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// ToggleAssignment locks the permission row so concurrent toggles and deletes
// on the same permission are applied one after another.
func (s *PGStore) ToggleAssignment(ctx context.Context, role Role, permissionID uuid.UUID, at time.Time) (bool, error) {
	var granted bool
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	err := db.WithTxOptions(ctx, s.pool, opts, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM permissions WHERE id = $1 FOR UPDATE`, permissionID).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO role_permissions (role, permission_id, created_at) VALUES ($1::app_role, $2, $3)
			 ON CONFLICT (role, permission_id) DO NOTHING`,
			string(role), permissionID, at,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			granted = true
			return nil
		}
		_, err = tx.Exec(ctx, `DELETE FROM role_permissions WHERE role = $1::app_role AND permission_id = $2`, string(role), permissionID)
		return err
	})
	if err != nil {
		return false, err
	}
	return granted, nil
}

func (s *PGStore) PruneOrphanAssignments(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM role_permissions rp WHERE NOT EXISTS (SELECT 1 FROM permissions p WHERE p.id = rp.permission_id)`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

var _ Store = (*PGStore)(nil)
