package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/remind101/pagecrypt/keys"
	"github.com/remind101/pagecrypt/store"
)

const keyColumns = `id, user_id, protected_key, public_key, encrypted_private_key, enabled, created_at, updated_at`

func (s *Store) InsertKey(ctx context.Context, r *keys.Record) error {
	_, err := s.exec(ctx, "insert key",
		`INSERT INTO user_keys (`+keyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.ProtectedKey, r.PublicKey, r.EncryptedPrivateKey,
		boolInt(r.Enabled), toNanos(r.CreatedAt), toNanos(r.UpdatedAt))
	return err
}

func (s *Store) ActiveKey(ctx context.Context, userID int64) (*keys.Record, error) {
	var rec *keys.Record
	err := s.query(ctx, "active key",
		`SELECT `+keyColumns+` FROM user_keys WHERE user_id = ? AND enabled = 1`,
		[]interface{}{userID},
		nil,
		func(rows *sql.Rows) error {
			var (
				r                keys.Record
				enabled          int
				created, updated int64
			)
			if err := rows.Scan(&r.ID, &r.UserID, &r.ProtectedKey, &r.PublicKey, &r.EncryptedPrivateKey, &enabled, &created, &updated); err != nil {
				return err
			}
			r.Enabled = enabled == 1
			r.CreatedAt, r.UpdatedAt = fromNanos(created), fromNanos(updated)
			rec = &r
			return nil
		})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) DisableKey(ctx context.Context, userID int64, at time.Time) error {
	res, err := s.exec(ctx, "disable key",
		`UPDATE user_keys SET enabled = 0, updated_at = ? WHERE user_id = ? AND enabled = 1`,
		toNanos(at), userID)
	if err != nil {
		return err
	}
	return affectedOrNotFound("disable key", res)
}

func affectedOrNotFound(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return store.Wrap(op, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
