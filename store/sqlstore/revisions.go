package sqlstore

import (
	"context"
	"database/sql"

	"github.com/remind101/pagecrypt/content"
	"github.com/remind101/pagecrypt/store"
)

const revisionColumns = `id, page_id, namespace, author_id, text, created_at`

func (s *Store) InsertRevision(ctx context.Context, r *content.Revision) error {
	err := s.db.QueryRowContext(ctx, s.rebind(
		`INSERT INTO revisions (page_id, namespace, author_id, text, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`),
		r.PageID, r.Namespace, r.AuthorID, r.Text, toNanos(r.CreatedAt)).Scan(&r.ID)
	return store.Wrap("insert revision", err)
}

func (s *Store) LatestRevision(ctx context.Context, pageID int64) (*content.Revision, error) {
	return s.revision(ctx, "latest revision", pageID, "DESC")
}

func (s *Store) FirstRevision(ctx context.Context, pageID int64) (*content.Revision, error) {
	return s.revision(ctx, "first revision", pageID, "ASC")
}

func (s *Store) revision(ctx context.Context, op string, pageID int64, order string) (*content.Revision, error) {
	var rev *content.Revision
	err := s.query(ctx, op,
		`SELECT `+revisionColumns+` FROM revisions WHERE page_id = ? ORDER BY id `+order+` LIMIT 1`,
		[]interface{}{pageID},
		nil,
		func(rows *sql.Rows) error {
			var (
				r       content.Revision
				created int64
			)
			if err := rows.Scan(&r.ID, &r.PageID, &r.Namespace, &r.AuthorID, &r.Text, &created); err != nil {
				return err
			}
			r.CreatedAt = fromNanos(created)
			rev = &r
			return nil
		})
	if err != nil {
		return nil, err
	}
	if rev == nil {
		return nil, store.ErrNotFound
	}
	return rev, nil
}
