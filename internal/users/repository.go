package users

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"voice-platform/pkg/utils"
)

// NOTE: PostgresDirectory assumes the users and user_push_targets tables
// from migrations/0001_init.sql.

type PostgresDirectory struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db, clock: time.Now}
}

func (r *PostgresDirectory) LookupByPhone(ctx context.Context, phone string) (string, bool, error) {
	const q = `SELECT id FROM users WHERE phone_number = $1`
	var id string
	if err := r.db.QueryRowContext(ctx, q, normalizePhone(phone)).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return id, true, nil
}

func (r *PostgresDirectory) Get(ctx context.Context, userID string) (User, error) {
	const q = `SELECT id, phone_number, COALESCE(display_name, ''), created_at FROM users WHERE id = $1`
	var u User
	if err := r.db.QueryRowContext(ctx, q, userID).Scan(&u.ID, &u.PhoneNumber, &u.DisplayName, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// DisplayName returns "" for a user without one.
func (r *PostgresDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	u, err := r.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.DisplayName, nil
}

func (r *PostgresDirectory) RegisterPushTarget(ctx context.Context, t PushTarget) error {
	if t.UserID == "" || strings.TrimSpace(t.Token) == "" || !t.Platform.Valid() {
		return ErrInvalidArgument
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.clock().UTC()
	}
	const q = `
INSERT INTO user_push_targets (user_id, token, platform, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (user_id, token) DO UPDATE SET platform = EXCLUDED.platform
`
	_, err := r.db.ExecContext(ctx, q, t.UserID, t.Token, string(t.Platform), t.CreatedAt)
	if utils.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

func (r *PostgresDirectory) PushTokens(ctx context.Context, userID string) ([]string, error) {
	const q = `SELECT token FROM user_push_targets WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

func (r *PostgresDirectory) RemovePushTargets(ctx context.Context, userID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	const q = `DELETE FROM user_push_targets WHERE user_id = $1 AND token = ANY($2)`
	_, err := r.db.ExecContext(ctx, q, userID, tokens)
	return err
}

// normalizePhone strips formatting so "+1 (555) 123-4567" and
// "+15551234567" resolve to the same user.
func normalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
