package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-erp/vantage-erp/internal/platform/db"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence for staff members. The
// override is stored as a nullable text array: NULL means no override, a
// concrete array (including the empty array) is an explicit override. Members
// link to roles by stable id only; the role name is joined in for display.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListMembers returns all staff members ordered by name.
func (r *Repository) ListMembers(ctx context.Context) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.id, m.name, m.role_id, COALESCE(r.name, ''), m.permissions, m.version, m.created_at, m.updated_at
FROM staff_members m LEFT JOIN roles r ON r.id = m.role_id
ORDER BY m.name`)
	if err != nil {
		return nil, fmt.Errorf("staff: list: %w", db.ClassifyError(err))
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("staff: list rows: %w", db.ClassifyError(err))
	}
	return out, nil
}

// GetMember fetches a staff member by ID.
func (r *Repository) GetMember(ctx context.Context, id string) (Member, error) {
	row := r.pool.QueryRow(ctx, `SELECT m.id, m.name, m.role_id, COALESCE(r.name, ''), m.permissions, m.version, m.created_at, m.updated_at
FROM staff_members m LEFT JOIN roles r ON r.id = m.role_id
WHERE m.id = $1`, id)
	member, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, shared.ErrNotFound
		}
		return Member{}, err
	}
	return member, nil
}

// SetOverride installs or clears the member's permission override, guarded by
// an optimistic version check. The write is a single UPDATE so a concurrent
// resolve observes either the old or the new override, never a mix.
func (r *Repository) SetOverride(ctx context.Context, id string, override Override, expectedVersion int64) (Member, error) {
	var perms *[]string
	if override.Valid {
		set := override.Permissions
		if set == nil {
			set = []string{}
		}
		perms = &set
	}
	row := r.pool.QueryRow(ctx, `WITH updated AS (
	UPDATE staff_members
	SET permissions = $3, version = version + 1, updated_at = NOW()
	WHERE id = $1 AND version = $2
	RETURNING id, name, role_id, permissions, version, created_at, updated_at
)
SELECT u.id, u.name, u.role_id, COALESCE(r.name, ''), u.permissions, u.version, u.created_at, u.updated_at
FROM updated u LEFT JOIN roles r ON r.id = u.role_id`,
		id, expectedVersion, perms)
	member, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, r.staleOrMissing(ctx, id)
		}
		return Member{}, err
	}
	return member, nil
}

func (r *Repository) staleOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT TRUE FROM staff_members WHERE id = $1`, id).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("staff: existence check: %w", db.ClassifyError(err))
	}
	return shared.ErrConflict
}

func scanMember(row pgx.Row) (Member, error) {
	var member Member
	var roleID *string
	var perms *[]string
	if err := row.Scan(&member.ID, &member.Name, &roleID, &member.RoleName, &perms, &member.Version, &member.CreatedAt, &member.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, err
		}
		return Member{}, fmt.Errorf("staff: scan: %w", db.ClassifyError(err))
	}
	if roleID != nil {
		member.RoleID = *roleID
	}
	if perms != nil {
		member.Override = Override{Permissions: *perms, Valid: true}
	}
	return member, nil
}
