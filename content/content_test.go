package content_test

import (
	"context"
	"testing"
	"time"

	"github.com/remind101/pagecrypt/content"
	"github.com/remind101/pagecrypt/crypto/envelope"
	"github.com/remind101/pagecrypt/disclosure"
	"github.com/remind101/pagecrypt/grants"
	"github.com/remind101/pagecrypt/keys"
	"github.com/remind101/pagecrypt/store"
	"github.com/remind101/pagecrypt/store/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner    int64 = 1
	stranger int64 = 3
	page     int64 = 42
)

type jar map[string]string

func (j jar) Cookie(name string) (string, bool) {
	v, ok := j[name]
	return v, ok
}

func (j jar) SetCookie(name, value string, session bool) { j[name] = value }

func (j jar) ClearCookie(name string) { delete(j, name) }

func newInterceptor(t *testing.T) (*content.Interceptor, *sqlstore.Store) {
	s, err := sqlstore.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	svc := grants.NewService(s, keys.NewRegistry(s))
	return content.NewInterceptor(disclosure.NewResolver(svc, nil), s), s
}

func sessionKey(t *testing.T) envelope.Key {
	k, err := envelope.GenerateRandomKey()
	require.NoError(t, err)
	return k
}

func withKey(actor int64, key envelope.Key) *disclosure.Request {
	return &disclosure.Request{
		ActorID: actor,
		PageID:  page,
		Cookies: jar{disclosure.UserKeyCookie: key.Encode()},
	}
}

func TestNamespacePolicy(t *testing.T) {
	p := content.NewNamespacePolicy()
	assert.True(t, p.Encrypted(content.DefaultNamespace))
	assert.False(t, p.Encrypted(0))

	p, err := content.ParseNamespacePolicy("2246, 3000")
	require.NoError(t, err)
	assert.True(t, p.Encrypted(3000))

	p, err = content.ParseNamespacePolicy("")
	require.NoError(t, err)
	assert.True(t, p.Encrypted(content.DefaultNamespace))

	_, err = content.ParseNamespacePolicy("main")
	assert.Error(t, err)
}

func TestMayEdit(t *testing.T) {
	p := content.NewNamespacePolicy()
	first := &content.Revision{AuthorID: owner}

	tests := []struct {
		name      string
		ns        int
		actor     int64
		first     *content.Revision
		mayCreate bool
		want      bool
	}{
		{"plain namespace", 0, stranger, first, false, true},
		{"anonymous", content.DefaultNamespace, 0, nil, true, false},
		{"new page", content.DefaultNamespace, stranger, nil, true, true},
		{"new page without right", content.DefaultNamespace, stranger, nil, false, false},
		{"author", content.DefaultNamespace, owner, first, false, true},
		{"not author", content.DefaultNamespace, stranger, first, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.MayEdit(tt.ns, tt.actor, tt.first, tt.mayCreate))
		})
	}
}

func TestSaveAndRead_Owner(t *testing.T) {
	ctx := context.Background()
	i, s := newInterceptor(t)
	key := sessionKey(t)

	rev, err := i.Save(ctx, withKey(owner, key), page, content.DefaultNamespace, "plaintext", true)
	require.NoError(t, err)
	assert.NotEqual(t, "plaintext", rev.Text)

	stored, err := s.LatestRevision(ctx, page)
	require.NoError(t, err)
	assert.Equal(t, rev.Text, stored.Text)

	v, err := i.Read(ctx, withKey(owner, key), page)
	require.NoError(t, err)
	assert.True(t, v.Disclosed)
	assert.Equal(t, "plaintext", v.Text)
	assert.Equal(t, disclosure.OwnerPath, v.Path)
	assert.Equal(t, disclosure.NoNotice, v.Notice)

	// The stored revision is left alone.
	assert.Equal(t, stored.Text, v.Revision.Text)
}

func TestRead_Stranger(t *testing.T) {
	ctx := context.Background()
	i, _ := newInterceptor(t)
	key := sessionKey(t)

	rev, err := i.Save(ctx, withKey(owner, key), page, content.DefaultNamespace, "plaintext", true)
	require.NoError(t, err)

	req := withKey(stranger, sessionKey(t))
	v, err := i.Read(ctx, req, page)
	require.NoError(t, err)
	assert.False(t, v.Disclosed)
	assert.True(t, v.Encrypted)
	assert.Equal(t, rev.Text, v.Text)
	assert.Equal(t, disclosure.EncryptedPage, req.Notice())
}

func TestSave_NoSessionKey(t *testing.T) {
	ctx := context.Background()
	i, s := newInterceptor(t)

	req := &disclosure.Request{ActorID: owner, PageID: page, Cookies: jar{}}
	_, err := i.Save(ctx, req, page, content.DefaultNamespace, "plaintext", true)
	assert.Equal(t, keys.ErrUserKeyNotSet, err)

	_, err = s.LatestRevision(ctx, page)
	assert.Equal(t, store.ErrNotFound, err)
}

func TestSave_NotAuthor(t *testing.T) {
	ctx := context.Background()
	i, _ := newInterceptor(t)

	_, err := i.Save(ctx, withKey(owner, sessionKey(t)), page, content.DefaultNamespace, "v1", true)
	require.NoError(t, err)

	_, err = i.Save(ctx, withKey(stranger, sessionKey(t)), page, content.DefaultNamespace, "v2", true)
	assert.Equal(t, content.ErrPermissionDenied, err)
}

func TestPassThrough(t *testing.T) {
	ctx := context.Background()
	i, _ := newInterceptor(t)
	i.Now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	req := &disclosure.Request{ActorID: stranger, PageID: page, Cookies: jar{}}
	rev, err := i.Save(ctx, req, page, 0, "public text", false)
	require.NoError(t, err)
	assert.Equal(t, "public text", rev.Text)

	v := i.MockUpContent(ctx, rev, &disclosure.Request{PageID: page})
	assert.False(t, v.Encrypted)
	assert.Equal(t, "public text", v.Text)
	assert.Equal(t, disclosure.NotEncrypted, v.Path)
}
