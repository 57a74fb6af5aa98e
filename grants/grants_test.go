package grants_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/remind101/pagecrypt/crypto/envelope"
	"github.com/remind101/pagecrypt/grants"
	"github.com/remind101/pagecrypt/keys"
	"github.com/remind101/pagecrypt/metrics"
	"github.com/remind101/pagecrypt/store"
	"github.com/remind101/pagecrypt/store/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner     int64 = 1
	recipient int64 = 2
	stranger  int64 = 3
	page      int64 = 42
)

var testKDFParams = envelope.KDFParams{Time: 1, Memory: 8 * 1024, Threads: 1}

type fixture struct {
	store    *sqlstore.Store
	registry *keys.Registry
	service  *grants.Service
	now      time.Time
}

func (f *fixture) clock() time.Time { return f.now }

func newFixture(t *testing.T) *fixture {
	s, err := sqlstore.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{store: s, now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.registry = keys.NewRegistry(s)
	f.registry.Params = testKDFParams
	f.registry.Now = f.clock
	f.service = grants.NewService(s, f.registry)
	f.service.Params = testKDFParams
	f.service.Now = f.clock
	return f
}

func (f *fixture) createKey(t *testing.T, userID int64) envelope.Key {
	km, err := f.registry.CreateKey(context.Background(), userID, "password")
	require.NoError(t, err)
	return km.MasterKey
}

func (f *fixture) share(t *testing.T, ownerKey envelope.Key, exp *time.Time) *grants.Created {
	created, err := f.service.CreateSymmetric(context.Background(), grants.SymmetricRequest{
		PageID:         page,
		RevisionID:     7,
		CreatedBy:      owner,
		OwnerKey:       ownerKey,
		Plaintext:      []byte("secret page"),
		ExpirationDate: exp,
	})
	require.NoError(t, err)
	return created
}

func TestKind(t *testing.T) {
	for _, k := range []grants.Kind{grants.Symmetric, grants.Asymmetric} {
		parsed, err := grants.ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := grants.ParseKind("public")
	assert.Error(t, err)
}

func TestCreateSymmetric(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)

	r, restore := metrics.Install()
	defer restore()

	created := f.share(t, ownerKey, nil)
	assert.Len(t, created.Code, grants.DefaultCodeLength)
	assert.Regexp(t, `^[0-9a-zA-Z]+$`, created.Code)
	assert.Equal(t, int64(1), r.Total("pagecrypt.grants.created", map[string]string{"kind": "symmetric"}))

	code, err := f.service.AccessCode(ctx, created.Grant.ID, ownerKey)
	require.NoError(t, err)
	assert.Equal(t, created.Code, code)

	other, err := envelope.GenerateRandomKey()
	require.NoError(t, err)
	_, err = f.service.AccessCode(ctx, created.Grant.ID, other)
	assert.Equal(t, envelope.ErrAuthenticationFailed, err)
}

func TestCreateSymmetric_UniqueCodes(t *testing.T) {
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	f.service.CodeLength = 1

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		created := f.share(t, ownerKey, nil)
		assert.False(t, seen[created.Code], "code %q issued twice", created.Code)
		seen[created.Code] = true
	}
}

func TestRedeemSymmetric(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	created := f.share(t, ownerKey, nil)

	visitor := grants.Visitor{IP: "10.0.0.1", UserAgent: "Mozilla/5.0"}

	_, err := f.service.RedeemSymmetric(ctx, page, "wrong", visitor)
	assert.Equal(t, grants.ErrNoMatchingGrant, err)

	_, err = f.service.RedeemSymmetric(ctx, page+1, created.Code, visitor)
	assert.Equal(t, grants.ErrNoMatchingGrant, err)

	red, err := f.service.RedeemSymmetric(ctx, page, created.Code, visitor)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret page"), red.Plaintext)
	assert.Equal(t, f.now, *red.Grant.Viewed)

	stored, err := f.service.Get(ctx, grants.Symmetric, created.Grant.ID)
	require.NoError(t, err)
	assert.Equal(t, &grants.ViewedMetadata{IP: "10.0.0.1", UserAgent: "Mozilla/5.0"}, stored.Symmetric.ViewedMetadata)

	// The code is single use.
	_, err = f.service.RedeemSymmetric(ctx, page, created.Code, visitor)
	assert.Equal(t, grants.ErrNoMatchingGrant, err)

	// The one-time key keeps working within the grace window.
	plaintext, err := f.service.RedeemSymmetricBySession(ctx, page, red.Key, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret page"), plaintext)
}

func TestRedeemSymmetric_NoTrack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created := f.share(t, f.createKey(t, owner), nil)

	_, err := f.service.RedeemSymmetric(ctx, page, created.Code, grants.Visitor{IP: "10.0.0.1", NoTrack: true})
	require.NoError(t, err)

	stored, err := f.service.Get(ctx, grants.Symmetric, created.Grant.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.Viewed)
	assert.Nil(t, stored.Symmetric.ViewedMetadata)
}

func TestRedeemSymmetric_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created := f.share(t, f.createKey(t, owner), nil)

	const n = 4
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.RedeemSymmetric(ctx, page, created.Code, grants.Visitor{})
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var ok, noMatch int
	for _, err := range errs {
		switch err {
		case nil:
			ok++
		case grants.ErrNoMatchingGrant:
			noMatch++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, noMatch)
}

func TestRedeemSymmetric_Expired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exp := f.now.Add(time.Hour)
	created := f.share(t, f.createKey(t, owner), &exp)

	f.now = exp.Add(time.Second)
	_, err := f.service.RedeemSymmetric(ctx, page, created.Code, grants.Visitor{})
	assert.Equal(t, grants.ErrGrantExpired, err)

	stored, err := f.service.Get(ctx, grants.Symmetric, created.Grant.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Viewed)
}

func TestRedeemSymmetricBySession_GraceWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created := f.share(t, f.createKey(t, owner), nil)

	red, err := f.service.RedeemSymmetric(ctx, page, created.Code, grants.Visitor{})
	require.NoError(t, err)
	viewed := f.now

	f.now = viewed.Add(23*time.Hour + 59*time.Minute)
	_, err = f.service.RedeemSymmetricBySession(ctx, page, red.Key, "")
	assert.NoError(t, err)

	f.now = viewed.Add(24 * time.Hour)
	_, err = f.service.RedeemSymmetricBySession(ctx, page, red.Key, "")
	assert.Equal(t, grants.ErrGrantExpired, err)

	f.now = viewed.Add(24*time.Hour + time.Minute)
	_, err = f.service.RedeemSymmetricBySession(ctx, page, red.Key, "")
	assert.Equal(t, grants.ErrGrantExpired, err)
}

func TestRedeemSymmetricBySession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created := f.share(t, f.createKey(t, owner), nil)

	// Not yet redeemed: the session path doesn't apply.
	key, err := envelope.GenerateRandomKey()
	require.NoError(t, err)
	_, err = f.service.RedeemSymmetricBySession(ctx, page, key, "")
	assert.Equal(t, grants.ErrNoMatchingGrant, err)

	red, err := f.service.RedeemSymmetric(ctx, page, created.Code, grants.Visitor{IP: "10.0.0.1"})
	require.NoError(t, err)

	_, err = f.service.RedeemSymmetricBySession(ctx, page, key, "")
	assert.Equal(t, grants.ErrNoMatchingGrant, err)

	// IP binding is advisory unless enabled.
	_, err = f.service.RedeemSymmetricBySession(ctx, page, red.Key, "10.9.9.9")
	assert.NoError(t, err)

	f.service.BindIP = true
	_, err = f.service.RedeemSymmetricBySession(ctx, page, red.Key, "10.9.9.9")
	assert.Equal(t, grants.ErrNoMatchingGrant, err)
	_, err = f.service.RedeemSymmetricBySession(ctx, page, red.Key, "10.0.0.1")
	assert.NoError(t, err)
}

func TestAsymmetric(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	recipientKey := f.createKey(t, recipient)
	strangerKey := f.createKey(t, stranger)

	g, err := f.service.CreateAsymmetric(ctx, grants.AsymmetricRequest{
		PageID:      page,
		CreatedBy:   owner,
		RecipientID: recipient,
		OwnerKey:    ownerKey,
		Plaintext:   []byte("secret page"),
	})
	require.NoError(t, err)
	assert.Equal(t, grants.Asymmetric, g.Kind)

	plaintext, err := f.service.RedeemAsymmetric(ctx, page, recipient, recipientKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret page"), plaintext)

	stored, err := f.service.Get(ctx, grants.Asymmetric, g.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Viewed)
	firstView := *stored.Viewed

	// Repeat opens are allowed and keep the first view.
	f.now = f.now.Add(time.Hour)
	_, err = f.service.RedeemAsymmetric(ctx, page, recipient, recipientKey)
	require.NoError(t, err)
	stored, err = f.service.Get(ctx, grants.Asymmetric, g.ID)
	require.NoError(t, err)
	assert.Equal(t, firstView, *stored.Viewed)

	_, err = f.service.RedeemAsymmetric(ctx, page, stranger, strangerKey)
	assert.Equal(t, grants.ErrNoMatchingGrant, err)

	_, err = f.service.RedeemAsymmetric(ctx, page, recipient, strangerKey)
	assert.Equal(t, envelope.ErrAuthenticationFailed, err)
}

func TestAsymmetric_Expired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	recipientKey := f.createKey(t, recipient)

	exp := f.now.Add(time.Hour)
	_, err := f.service.CreateAsymmetric(ctx, grants.AsymmetricRequest{
		PageID:         page,
		CreatedBy:      owner,
		RecipientID:    recipient,
		OwnerKey:       ownerKey,
		Plaintext:      []byte("secret page"),
		ExpirationDate: &exp,
	})
	require.NoError(t, err)

	f.now = exp.Add(time.Second)
	_, err = f.service.RedeemAsymmetric(ctx, page, recipient, recipientKey)
	assert.Equal(t, grants.ErrGrantExpired, err)
}

func TestAsymmetric_KeyMaterialMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)

	_, err := f.service.CreateAsymmetric(ctx, grants.AsymmetricRequest{
		PageID:      page,
		CreatedBy:   owner,
		RecipientID: recipient,
		OwnerKey:    ownerKey,
		Plaintext:   []byte("secret page"),
	})
	assert.Equal(t, grants.ErrKeyMaterialMissing, err)

	_, err = f.service.CreateAsymmetric(ctx, grants.AsymmetricRequest{
		PageID:      page,
		CreatedBy:   stranger,
		RecipientID: owner,
		OwnerKey:    ownerKey,
		Plaintext:   []byte("secret page"),
	})
	assert.Equal(t, grants.ErrKeyMaterialMissing, err)
}

func TestAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	f.createKey(t, recipient)

	a := f.share(t, ownerKey, nil)
	b := f.share(t, ownerKey, nil)
	_, err := f.service.CreateAsymmetric(ctx, grants.AsymmetricRequest{
		PageID: page, CreatedBy: owner, RecipientID: recipient, OwnerKey: ownerKey, Plaintext: []byte("x"),
	})
	require.NoError(t, err)

	all, err := f.service.List(ctx, grants.Query{PageID: page})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	forRecipient, err := f.service.List(ctx, grants.Query{RecipientID: recipient})
	require.NoError(t, err)
	assert.Len(t, forRecipient, 1)

	past := f.now.Add(-time.Minute)
	require.NoError(t, f.service.SetExpiration(ctx, grants.Symmetric, a.Grant.ID, &past))
	assert.Equal(t, store.ErrNotFound, f.service.SetExpiration(ctx, grants.Symmetric, "missing", nil))

	n, err := f.service.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.service.Delete(ctx, grants.Symmetric, grants.Query{})
	assert.Error(t, err)

	n, err = f.service.Delete(ctx, grants.Symmetric, grants.Query{ID: b.Grant.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.service.Get(ctx, grants.Symmetric, b.Grant.ID)
	assert.Equal(t, store.ErrNotFound, err)
}
