package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"voice-platform/pkg/utils"
)

// NOTE: PostgresStore assumes the tables in migrations/0001_init.sql:
// - call_sessions
// - call_active_participants (user_id PRIMARY KEY)
//
// A row in call_active_participants claims a user for one non-terminal call.
// The primary key is what makes "one live call per user" hold across
// instances; the service-level busy check only produces nicer errors.

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `
call_id, from_user_id, to_user_id, to_phone_number, call_type, status,
start_time, connected_at, end_time, duration_seconds, quality_score,
end_reason, ring_deadline, metadata, updated_at`

func (r *PostgresStore) Get(ctx context.Context, callID string) (CallSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE call_id = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, ErrNotFound
		}
		return CallSession{}, err
	}
	return s, nil
}

func (r *PostgresStore) Create(ctx context.Context, s CallSession) error {
	meta, err := encodeMetadata(s.Metadata)
	if err != nil {
		return err
	}
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if err := claimParticipant(ctx, tx, s.FromUserID, s.CallID, "caller"); err != nil {
			if utils.IsUniqueViolation(err, "") {
				return ErrCallerBusy
			}
			return err
		}
		if s.ToUserID != "" {
			if err := claimParticipant(ctx, tx, s.ToUserID, s.CallID, "callee"); err != nil {
				if utils.IsUniqueViolation(err, "") {
					return ErrRecipientBusy
				}
				return err
			}
		}

		const q = `
INSERT INTO call_sessions (
  call_id, from_user_id, to_user_id, to_phone_number, call_type, status,
  start_time, connected_at, end_time, duration_seconds, quality_score,
  end_reason, ring_deadline, metadata, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
`
		_, err := tx.ExecContext(ctx, q,
			s.CallID,
			s.FromUserID,
			nullString(s.ToUserID),
			s.ToPhoneNumber,
			string(s.CallType),
			string(s.Status),
			s.StartTime,
			s.ConnectedAt,
			s.EndTime,
			s.DurationSeconds,
			s.QualityScore,
			nullString(s.EndReason),
			s.RingDeadline,
			meta,
			s.UpdatedAt,
		)
		return err
	})
}

func (r *PostgresStore) CompareAndSetStatus(ctx context.Context, callID string, expected []Status, next CallSession) (bool, error) {
	meta, err := encodeMetadata(next.Metadata)
	if err != nil {
		return false, err
	}
	var applied bool
	err = utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE call_sessions
SET status = $3,
    connected_at = $4,
    end_time = $5,
    duration_seconds = $6,
    quality_score = $7,
    end_reason = $8,
    ring_deadline = $9,
    metadata = $10,
    updated_at = $11
WHERE call_id = $1 AND status = ANY($2)
`
		res, err := tx.ExecContext(ctx, q,
			callID,
			statusStrings(expected),
			string(next.Status),
			next.ConnectedAt,
			next.EndTime,
			next.DurationSeconds,
			next.QualityScore,
			nullString(next.EndReason),
			next.RingDeadline,
			meta,
			next.UpdatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		applied = true

		if next.Status.IsTerminal() {
			_, err = tx.ExecContext(ctx, `DELETE FROM call_active_participants WHERE call_id = $1`, callID)
			return err
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *PostgresStore) FindActiveByParticipant(ctx context.Context, userID string) ([]CallSession, error) {
	q := `SELECT ` + sessionColumns + `
FROM call_sessions
WHERE (from_user_id = $1 OR to_user_id = $1) AND status = ANY($2)
ORDER BY start_time DESC`
	return r.query(ctx, q, userID, statusStrings(NonTerminalStatuses))
}

func (r *PostgresStore) FindStale(ctx context.Context, cutoff, now time.Time, limit int) ([]CallSession, error) {
	q := `SELECT ` + sessionColumns + `
FROM call_sessions
WHERE (status = ANY($1) AND updated_at < $2)
   OR (status = ANY($3) AND ring_deadline IS NOT NULL AND ring_deadline <= $4)
ORDER BY updated_at ASC
LIMIT $5`
	return r.query(ctx, q, statusStrings(NonTerminalStatuses), cutoff, statusStrings(RingingStatuses), now, limit)
}

func (r *PostgresStore) Touch(ctx context.Context, callID string, now time.Time) error {
	const q = `UPDATE call_sessions SET updated_at = $2 WHERE call_id = $1 AND status = ANY($3)`
	res, err := r.db.ExecContext(ctx, q, callID, now, statusStrings(NonTerminalStatuses))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresStore) ListByParticipant(ctx context.Context, userID string, from, to time.Time) ([]CallSession, error) {
	q := `SELECT ` + sessionColumns + `
FROM call_sessions
WHERE (from_user_id = $1 OR to_user_id = $1) AND start_time >= $2 AND start_time < $3
ORDER BY start_time ASC`
	return r.query(ctx, q, userID, from, to)
}

func (r *PostgresStore) query(ctx context.Context, q string, args ...any) ([]CallSession, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func claimParticipant(ctx context.Context, tx *sql.Tx, userID, callID, role string) error {
	const q = `INSERT INTO call_active_participants (user_id, call_id, role) VALUES ($1,$2,$3)`
	_, err := tx.ExecContext(ctx, q, userID, callID, role)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (CallSession, error) {
	var (
		s            CallSession
		toUserID     sql.NullString
		endReason    sql.NullString
		connectedAt  sql.NullTime
		endTime      sql.NullTime
		ringDeadline sql.NullTime
		duration     sql.NullInt64
		quality      sql.NullInt64
		meta         []byte
	)
	if err := row.Scan(
		&s.CallID,
		&s.FromUserID,
		&toUserID,
		&s.ToPhoneNumber,
		&s.CallType,
		&s.Status,
		&s.StartTime,
		&connectedAt,
		&endTime,
		&duration,
		&quality,
		&endReason,
		&ringDeadline,
		&meta,
		&s.UpdatedAt,
	); err != nil {
		return CallSession{}, err
	}

	s.ToUserID = toUserID.String
	s.EndReason = endReason.String
	s.ConnectedAt = timePtr(connectedAt)
	s.EndTime = timePtr(endTime)
	s.RingDeadline = timePtr(ringDeadline)
	s.DurationSeconds = intPtr(duration)
	s.QualityScore = intPtr(quality)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return CallSession{}, err
		}
	}
	return s, nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func statusStrings(in []Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
