package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-erp/vantage-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the privilege change
// ledger. Appends are single inserts, so concurrent committers never lose
// entries; the seq column preserves insertion order for timestamp ties.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts one entry.
func (r *Repository) Append(ctx context.Context, entry Entry) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO audit_logs (id, admin_id, admin_name, target_user_name, action_type, change_details, created_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		entry.ID, entry.AdminID, entry.AdminName, entry.TargetName, string(entry.ActionType), entry.ChangeDetails, nullableTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("audit: append: %w", db.ClassifyError(err))
	}
	return nil
}

// RecentWindow returns the newest limit entries in ascending time order,
// ties in insertion order.
func (r *Repository) RecentWindow(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, admin_id, admin_name, target_user_name, action_type, change_details, created_at
FROM (
	SELECT id, admin_id, admin_name, target_user_name, action_type, change_details, created_at, seq
	FROM audit_logs ORDER BY created_at DESC, seq DESC LIMIT $1
) window ORDER BY created_at ASC, seq ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent window: %w", db.ClassifyError(err))
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var entry Entry
		var action string
		if err := rows.Scan(&entry.ID, &entry.AdminID, &entry.AdminName, &entry.TargetName, &action, &entry.ChangeDetails, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", db.ClassifyError(err))
		}
		entry.ActionType = ActionType(action)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: window rows: %w", db.ClassifyError(err))
	}
	return out, nil
}

// ArchiveOlderThan moves entries past the retention horizon into the cold
// archive table in one atomic statement. The ledger itself stays append-only:
// no entry is ever destroyed, archived rows keep their id, seq and timestamps.
// Used only by the retention job, never by the commit path.
func (r *Repository) ArchiveOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `WITH moved AS (
	DELETE FROM audit_logs WHERE created_at < NOW() - ($1 || ' days')::interval
	RETURNING seq, id, admin_id, admin_name, target_user_name, action_type, change_details, created_at
)
INSERT INTO audit_logs_archive (seq, id, admin_id, admin_name, target_user_name, action_type, change_details, created_at)
SELECT seq, id, admin_id, admin_name, target_user_name, action_type, change_details, created_at FROM moved`, days)
	if err != nil {
		return 0, fmt.Errorf("audit: archive: %w", db.ClassifyError(err))
	}
	return tag.RowsAffected(), nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
