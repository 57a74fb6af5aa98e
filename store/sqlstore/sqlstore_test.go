package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"testing"
	"time"

	"github.com/remind101/pagecrypt/content"
	"github.com/remind101/pagecrypt/grants"
	"github.com/remind101/pagecrypt/keys"
	"github.com/remind101/pagecrypt/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	s, err := OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: Postgres}
	lite := &Store{dialect: SQLite}
	q := `UPDATE t SET a = ? WHERE id = ? AND b IS NULL`

	assert.Equal(t, `UPDATE t SET a = $1 WHERE id = $2 AND b IS NULL`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestOpen_UnknownDialect(t *testing.T) {
	_, err := Open("mysql", "")
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestKeys(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.ActiveKey(ctx, 1)
	assert.Equal(t, store.ErrNotFound, err)
	assert.Equal(t, store.ErrNotFound, s.DisableKey(ctx, 1, t0))

	rec := &keys.Record{
		ID:                  "k1",
		UserID:              1,
		ProtectedKey:        "protected",
		PublicKey:           "public",
		EncryptedPrivateKey: "private",
		Enabled:             true,
		CreatedAt:           t0,
		UpdatedAt:           t0,
	}
	require.NoError(t, s.InsertKey(ctx, rec))

	got, err := s.ActiveKey(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	second := *rec
	second.ID = "k2"
	assert.Equal(t, store.ErrDuplicate, s.InsertKey(ctx, &second))

	require.NoError(t, s.DisableKey(ctx, 1, t0.Add(time.Hour)))
	_, err = s.ActiveKey(ctx, 1)
	assert.Equal(t, store.ErrNotFound, err)

	require.NoError(t, s.InsertKey(ctx, &second))
	got, err = s.ActiveKey(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "k2", got.ID)
}

func symmetricGrant(id string, pageID int64) *grants.Grant {
	return &grants.Grant{
		Kind:      grants.Symmetric,
		ID:        id,
		PageID:    pageID,
		CreatedBy: 1,
		CreatedAt: t0,
		UpdatedAt: t0,
		Symmetric: &grants.SymmetricPayload{
			RevisionID:        3,
			ProtectedKey:      "pk-" + id,
			EncryptedContent:  "content-" + id,
			EncryptedPassword: "password-" + id,
		},
	}
}

func asymmetricGrant(id string, pageID, recipientID int64) *grants.Grant {
	return &grants.Grant{
		Kind:      grants.Asymmetric,
		ID:        id,
		PageID:    pageID,
		CreatedBy: 1,
		CreatedAt: t0,
		UpdatedAt: t0,
		Asymmetric: &grants.AsymmetricPayload{
			RecipientID:      recipientID,
			Nonce:            "nonce-" + id,
			EncryptedContent: "box-" + id,
		},
	}
}

func TestGrants_InsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	exp := t0.Add(48 * time.Hour)
	a := symmetricGrant("a", 10)
	a.ExpirationDate = &exp
	require.NoError(t, s.InsertGrant(ctx, a))
	require.NoError(t, s.InsertGrant(ctx, symmetricGrant("b", 10)))
	require.NoError(t, s.InsertGrant(ctx, symmetricGrant("c", 11)))
	require.NoError(t, s.InsertGrant(ctx, asymmetricGrant("d", 10, 7)))
	require.NoError(t, s.InsertGrant(ctx, asymmetricGrant("e", 10, 8)))

	got, err := s.Grants(ctx, grants.Symmetric, grants.Query{ID: "a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a, got[0])

	got, err = s.Grants(ctx, grants.Symmetric, grants.Query{PageID: 10})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.Grants(ctx, grants.Asymmetric, grants.Query{PageID: 10, RecipientID: 7})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, asymmetricGrant("d", 10, 7), got[0])

	assert.Equal(t, store.ErrDuplicate, s.InsertGrant(ctx, symmetricGrant("a", 10)))
}

func TestQuery_RetryStartsOver(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.InsertGrant(ctx, symmetricGrant(id, 10)))
	}

	var (
		ids      []string
		attempts int
	)
	err := s.query(ctx, "list ids", `SELECT id FROM page_grants_symmetric ORDER BY id`, nil,
		func() {
			attempts++
			ids = nil
		},
		func(rows *sql.Rows) error {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
			if attempts == 1 && len(ids) == 2 {
				return driver.ErrBadConn
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestMarkViewed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertGrant(ctx, symmetricGrant("a", 10)))

	meta := &grants.ViewedMetadata{IP: "10.0.0.1", UserAgent: "curl/8.0"}
	viewedAt := t0.Add(time.Minute)
	require.NoError(t, s.MarkViewed(ctx, grants.Symmetric, "a", viewedAt, meta))
	assert.Equal(t, store.ErrAlreadyConsumed, s.MarkViewed(ctx, grants.Symmetric, "a", viewedAt, nil))
	assert.Equal(t, store.ErrNotFound, s.MarkViewed(ctx, grants.Symmetric, "missing", viewedAt, nil))

	unviewed, err := s.Grants(ctx, grants.Symmetric, grants.Query{PageID: 10, Viewed: grants.OnlyUnviewed})
	require.NoError(t, err)
	assert.Empty(t, unviewed)

	viewed, err := s.Grants(ctx, grants.Symmetric, grants.Query{PageID: 10, Viewed: grants.OnlyViewed})
	require.NoError(t, err)
	require.Len(t, viewed, 1)
	assert.Equal(t, viewedAt, *viewed[0].Viewed)
	assert.Equal(t, meta, viewed[0].Symmetric.ViewedMetadata)
}

func TestMarkViewed_NoTrack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertGrant(ctx, symmetricGrant("a", 10)))
	require.NoError(t, s.MarkViewed(ctx, grants.Symmetric, "a", t0, nil))

	got, err := s.Grants(ctx, grants.Symmetric, grants.Query{ID: "a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotNil(t, got[0].Viewed)
	assert.Nil(t, got[0].Symmetric.ViewedMetadata)
}

func TestMarkViewed_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertGrant(ctx, symmetricGrant("a", 10)))

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		won      int
		consumed int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.MarkViewed(ctx, grants.Symmetric, "a", t0, nil)
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				won++
			case store.ErrAlreadyConsumed:
				consumed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, n-1, consumed)
}

func TestUpdateExpirationDeleteAndPurge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertGrant(ctx, symmetricGrant("a", 10)))
	require.NoError(t, s.InsertGrant(ctx, symmetricGrant("b", 10)))
	require.NoError(t, s.InsertGrant(ctx, asymmetricGrant("c", 10, 7)))

	past := t0.Add(-time.Hour)
	require.NoError(t, s.UpdateExpiration(ctx, grants.Symmetric, "a", &past, t0))
	assert.Equal(t, store.ErrNotFound, s.UpdateExpiration(ctx, grants.Symmetric, "missing", nil, t0))

	n, err := s.PurgeExpired(ctx, grants.Symmetric, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.DeleteGrants(ctx, grants.Asymmetric, grants.Query{})
	assert.Error(t, err)

	n, err = s.DeleteGrants(ctx, grants.Asymmetric, grants.Query{RecipientID: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := s.Grants(ctx, grants.Symmetric, grants.Query{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0].ID)
}

func TestRevisions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.LatestRevision(ctx, 42)
	assert.Equal(t, store.ErrNotFound, err)

	first := &content.Revision{PageID: 42, Namespace: 2246, AuthorID: 1, Text: "one", CreatedAt: t0}
	require.NoError(t, s.InsertRevision(ctx, first))
	assert.NotZero(t, first.ID)

	second := &content.Revision{PageID: 42, Namespace: 2246, AuthorID: 2, Text: "two", CreatedAt: t0.Add(time.Minute)}
	require.NoError(t, s.InsertRevision(ctx, second))
	assert.True(t, second.ID > first.ID)

	latest, err := s.LatestRevision(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, second, latest)

	oldest, err := s.FirstRevision(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, first, oldest)
}

func TestSchemaFor(t *testing.T) {
	for _, stmt := range schemaFor(Postgres) {
		assert.NotContains(t, stmt, serialType)
	}
	assert.Contains(t, schemaFor(Postgres)[len(schema)-2], "BIGSERIAL")
	assert.Contains(t, schemaFor(SQLite)[len(schema)-2], "INTEGER PRIMARY KEY")
}
