package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to call_audit_events. It never updates or deletes.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO call_audit_events (id, call_id, actor_user_id, from_status, to_status, reason, created_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''), $7)`,
		e.ID, e.CallID, e.ActorUserID, e.FromStatus, e.ToStatus, e.Reason, e.CreatedAt)
	return err
}

func (r *PostgresRepo) ListByCall(ctx context.Context, callID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, call_id, COALESCE(actor_user_id, ''), COALESCE(from_status, ''), to_status, COALESCE(reason, ''), created_at
FROM call_audit_events
WHERE call_id = $1
ORDER BY created_at, id`, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.CallID, &e.ActorUserID, &e.FromStatus, &e.ToStatus, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
