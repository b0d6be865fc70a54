package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-erp/vantage-erp/internal/platform/db"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns roles ordered by name. Soft-deleted roles are included
// only when includeDeleted is set.
func (r *Repository) ListRoles(ctx context.Context, includeDeleted bool) ([]Role, error) {
	query := `SELECT id, name, is_deleted, permissions, version, created_at, updated_at
FROM roles WHERE NOT is_deleted OR $1 ORDER BY name`
	rows, err := r.pool.Query(ctx, query, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", db.ClassifyError(err))
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.IsDeleted, &role.Permissions, &role.Version, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("roles: scan: %w", db.ClassifyError(err))
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles: list rows: %w", db.ClassifyError(err))
	}
	return out, nil
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, is_deleted, permissions, version, created_at, updated_at
FROM roles WHERE id = $1`, id).Scan(&role.ID, &role.Name, &role.IsDeleted, &role.Permissions, &role.Version, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, fmt.Errorf("roles: get: %w", db.ClassifyError(err))
	}
	return role, nil
}

// GetRoleByName fetches a role by its display name. Name is a display
// attribute; the oldest match wins if duplicates ever slip in.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, is_deleted, permissions, version, created_at, updated_at
FROM roles WHERE name = $1 ORDER BY created_at LIMIT 1`, name).Scan(&role.ID, &role.Name, &role.IsDeleted, &role.Permissions, &role.Version, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, fmt.Errorf("roles: get by name: %w", db.ClassifyError(err))
	}
	return role, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO roles (id, name, is_deleted, permissions, version)
VALUES ($1, $2, FALSE, $3, 1)
RETURNING id, name, is_deleted, permissions, version, created_at, updated_at`,
		role.ID, role.Name, role.Permissions).Scan(&role.ID, &role.Name, &role.IsDeleted, &role.Permissions, &role.Version, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Role{}, fmt.Errorf("roles: create %q: %w", role.ID, shared.ErrConflict)
		}
		return Role{}, fmt.Errorf("roles: create: %w", db.ClassifyError(err))
	}
	return role, nil
}

// ReplacePermissions swaps the whole permission set of a role, guarded by an
// optimistic version check.
func (r *Repository) ReplacePermissions(ctx context.Context, id string, perms []string, expectedVersion int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `UPDATE roles
SET permissions = $3, version = version + 1, updated_at = NOW()
WHERE id = $1 AND version = $2
RETURNING id, name, is_deleted, permissions, version, created_at, updated_at`,
		id, expectedVersion, perms).Scan(&role.ID, &role.Name, &role.IsDeleted, &role.Permissions, &role.Version, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, r.staleOrMissing(ctx, id)
		}
		return Role{}, fmt.Errorf("roles: replace permissions: %w", db.ClassifyError(err))
	}
	return role, nil
}

// SoftDeleteRole marks a role deleted without removing the row.
func (r *Repository) SoftDeleteRole(ctx context.Context, id string, expectedVersion int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET is_deleted = TRUE, version = version + 1, updated_at = NOW()
WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("roles: soft delete: %w", db.ClassifyError(err))
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, id)
	}
	return nil
}

func (r *Repository) staleOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT TRUE FROM roles WHERE id = $1`, id).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("roles: existence check: %w", db.ClassifyError(err))
	}
	return shared.ErrConflict
}
