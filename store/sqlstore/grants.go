package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/grants"
	"github.com/remind101/pagecrypt/store"
)

const (
	symmetricColumns  = `id, page_id, created_by, revision_id, protected_key, encrypted_content, encrypted_password, expiration_date, viewed, viewed_metadata, created_at, updated_at`
	asymmetricColumns = `id, page_id, created_by, recipient_id, nonce, encrypted_content, expiration_date, viewed, created_at, updated_at`
)

func table(kind grants.Kind) (string, error) {
	switch kind {
	case grants.Symmetric:
		return "page_grants_symmetric", nil
	case grants.Asymmetric:
		return "page_grants_asymmetric", nil
	}
	return "", errors.Errorf("sqlstore: unknown grant kind %v", kind)
}

func (s *Store) InsertGrant(ctx context.Context, g *grants.Grant) error {
	switch g.Kind {
	case grants.Symmetric:
		p := g.Symmetric
		_, err := s.exec(ctx, "insert grant",
			`INSERT INTO page_grants_symmetric (`+symmetricColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			g.ID, g.PageID, g.CreatedBy, p.RevisionID, p.ProtectedKey, p.EncryptedContent, p.EncryptedPassword,
			nullNanos(g.ExpirationDate), nullNanos(g.Viewed), nullString(p.ViewedMetadata.String()),
			toNanos(g.CreatedAt), toNanos(g.UpdatedAt))
		return err
	case grants.Asymmetric:
		p := g.Asymmetric
		_, err := s.exec(ctx, "insert grant",
			`INSERT INTO page_grants_asymmetric (`+asymmetricColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			g.ID, g.PageID, g.CreatedBy, p.RecipientID, p.Nonce, p.EncryptedContent,
			nullNanos(g.ExpirationDate), nullNanos(g.Viewed),
			toNanos(g.CreatedAt), toNanos(g.UpdatedAt))
		return err
	}
	_, err := table(g.Kind)
	return err
}

func (s *Store) Grants(ctx context.Context, kind grants.Kind, q grants.Query) ([]*grants.Grant, error) {
	tbl, err := table(kind)
	if err != nil {
		return nil, err
	}
	where, args := conditions(q)

	columns, scan := symmetricColumns, scanSymmetric
	if kind == grants.Asymmetric {
		columns, scan = asymmetricColumns, scanAsymmetric
	}

	var out []*grants.Grant
	err = s.query(ctx, "list grants",
		`SELECT `+columns+` FROM `+tbl+where+` ORDER BY created_at`,
		args,
		func() { out = nil },
		func(rows *sql.Rows) error {
			g, err := scan(rows)
			if err != nil {
				return err
			}
			out = append(out, g)
			return nil
		})
	return out, err
}

// MarkViewed is the one-time compare-and-mark. It is a single conditional
// UPDATE; zero affected rows means another request got there first, or the
// grant does not exist.
func (s *Store) MarkViewed(ctx context.Context, kind grants.Kind, id string, at time.Time, meta *grants.ViewedMetadata) error {
	tbl, err := table(kind)
	if err != nil {
		return err
	}

	var res sql.Result
	if kind == grants.Symmetric {
		res, err = s.exec(ctx, "mark viewed",
			`UPDATE `+tbl+` SET viewed = ?, viewed_metadata = ?, updated_at = ? WHERE id = ? AND viewed IS NULL`,
			toNanos(at), nullString(meta.String()), toNanos(at), id)
	} else {
		res, err = s.exec(ctx, "mark viewed",
			`UPDATE `+tbl+` SET viewed = ?, updated_at = ? WHERE id = ? AND viewed IS NULL`,
			toNanos(at), toNanos(at), id)
	}
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return store.Wrap("mark viewed", err)
	}
	if n == 1 {
		return nil
	}

	exists, err := s.exists(ctx, tbl, id)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrAlreadyConsumed
}

func (s *Store) UpdateExpiration(ctx context.Context, kind grants.Kind, id string, exp *time.Time, at time.Time) error {
	tbl, err := table(kind)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, "update expiration",
		`UPDATE `+tbl+` SET expiration_date = ?, updated_at = ? WHERE id = ?`,
		nullNanos(exp), toNanos(at), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound("update expiration", res)
}

func (s *Store) DeleteGrants(ctx context.Context, kind grants.Kind, q grants.Query) (int64, error) {
	tbl, err := table(kind)
	if err != nil {
		return 0, err
	}
	if q.Empty() {
		return 0, errors.Errorf("sqlstore: refusing to delete every %v grant", kind)
	}
	where, args := conditions(q)
	res, err := s.exec(ctx, "delete grants", `DELETE FROM `+tbl+where, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return n, store.Wrap("delete grants", err)
}

func (s *Store) PurgeExpired(ctx context.Context, kind grants.Kind, before time.Time) (int64, error) {
	tbl, err := table(kind)
	if err != nil {
		return 0, err
	}
	res, err := s.exec(ctx, "purge expired",
		`DELETE FROM `+tbl+` WHERE expiration_date IS NOT NULL AND expiration_date < ?`,
		toNanos(before))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return n, store.Wrap("purge expired", err)
}

func (s *Store) exists(ctx context.Context, tbl, id string) (bool, error) {
	var found bool
	err := s.query(ctx, "grant exists", `SELECT id FROM `+tbl+` WHERE id = ?`, []interface{}{id}, nil,
		func(*sql.Rows) error {
			found = true
			return nil
		})
	return found, err
}

func conditions(q grants.Query) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	if q.ID != "" {
		clauses = append(clauses, "id = ?")
		args = append(args, q.ID)
	}
	if q.PageID != 0 {
		clauses = append(clauses, "page_id = ?")
		args = append(args, q.PageID)
	}
	if q.CreatedBy != 0 {
		clauses = append(clauses, "created_by = ?")
		args = append(args, q.CreatedBy)
	}
	if q.RecipientID != 0 {
		clauses = append(clauses, "recipient_id = ?")
		args = append(args, q.RecipientID)
	}
	switch q.Viewed {
	case grants.OnlyViewed:
		clauses = append(clauses, "viewed IS NOT NULL")
	case grants.OnlyUnviewed:
		clauses = append(clauses, "viewed IS NULL")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanSymmetric(rows *sql.Rows) (*grants.Grant, error) {
	var (
		g                grants.Grant
		p                grants.SymmetricPayload
		exp, viewed      sql.NullInt64
		meta             sql.NullString
		created, updated int64
	)
	err := rows.Scan(&g.ID, &g.PageID, &g.CreatedBy, &p.RevisionID, &p.ProtectedKey, &p.EncryptedContent,
		&p.EncryptedPassword, &exp, &viewed, &meta, &created, &updated)
	if err != nil {
		return nil, err
	}
	if p.ViewedMetadata, err = grants.ParseViewedMetadata(meta.String); err != nil {
		return nil, err
	}
	g.Kind = grants.Symmetric
	g.ExpirationDate, g.Viewed = fromNullNanos(exp), fromNullNanos(viewed)
	g.CreatedAt, g.UpdatedAt = fromNanos(created), fromNanos(updated)
	g.Symmetric = &p
	return &g, nil
}

func scanAsymmetric(rows *sql.Rows) (*grants.Grant, error) {
	var (
		g                grants.Grant
		p                grants.AsymmetricPayload
		exp, viewed      sql.NullInt64
		created, updated int64
	)
	err := rows.Scan(&g.ID, &g.PageID, &g.CreatedBy, &p.RecipientID, &p.Nonce, &p.EncryptedContent,
		&exp, &viewed, &created, &updated)
	if err != nil {
		return nil, err
	}
	g.Kind = grants.Asymmetric
	g.ExpirationDate, g.Viewed = fromNullNanos(exp), fromNullNanos(viewed)
	g.CreatedAt, g.UpdatedAt = fromNanos(created), fromNanos(updated)
	g.Asymmetric = &p
	return &g, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
