package disclosure_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/remind101/pagecrypt/crypto/envelope"
	"github.com/remind101/pagecrypt/disclosure"
	"github.com/remind101/pagecrypt/grants"
	"github.com/remind101/pagecrypt/keys"
	"github.com/remind101/pagecrypt/metrics"
	"github.com/remind101/pagecrypt/store/sqlstore"
	"github.com/remind101/pagecrypt/throttle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner     int64 = 1
	recipient int64 = 2
	stranger  int64 = 3
	page      int64 = 42
	otherPage int64 = 43
)

var testKDFParams = envelope.KDFParams{Time: 1, Memory: 8 * 1024, Threads: 1}

type cookie struct {
	value   string
	session bool
}

type jar struct {
	sync.Mutex
	cookies map[string]cookie
}

func newJar() *jar { return &jar{cookies: map[string]cookie{}} }

func (j *jar) Cookie(name string) (string, bool) {
	j.Lock()
	defer j.Unlock()
	c, ok := j.cookies[name]
	return c.value, ok
}

func (j *jar) SetCookie(name, value string, session bool) {
	j.Lock()
	defer j.Unlock()
	j.cookies[name] = cookie{value, session}
}

func (j *jar) ClearCookie(name string) {
	j.Lock()
	defer j.Unlock()
	delete(j.cookies, name)
}

type fixture struct {
	registry *keys.Registry
	service  *grants.Service
	resolver *disclosure.Resolver
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	s, err := sqlstore.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.registry = keys.NewRegistry(s)
	f.registry.Params = testKDFParams
	f.registry.Now = clock
	f.service = grants.NewService(s, f.registry)
	f.service.Params = testKDFParams
	f.service.Now = clock
	f.resolver = disclosure.NewResolver(f.service, nil)
	return f
}

func (f *fixture) createKey(t *testing.T, userID int64) envelope.Key {
	km, err := f.registry.CreateKey(context.Background(), userID, "password")
	require.NoError(t, err)
	return km.MasterKey
}

func (f *fixture) content(t *testing.T, key envelope.Key, text string) disclosure.Content {
	ciphertext, err := envelope.Encrypt([]byte(text), key)
	require.NoError(t, err)
	return disclosure.Content{RevisionID: 7, PageID: page, AuthorID: owner, Ciphertext: ciphertext}
}

func (f *fixture) share(t *testing.T, ownerKey envelope.Key, text string) string {
	created, err := f.service.CreateSymmetric(context.Background(), grants.SymmetricRequest{
		PageID:     page,
		RevisionID: 7,
		CreatedBy:  owner,
		OwnerKey:   ownerKey,
		Plaintext:  []byte(text),
	})
	require.NoError(t, err)
	return created.Code
}

func withKey(actor int64, key envelope.Key) *disclosure.Request {
	j := newJar()
	j.SetCookie(disclosure.UserKeyCookie, key.Encode(), false)
	return &disclosure.Request{ActorID: actor, PageID: page, Cookies: j}
}

func TestResolve_Owner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	c := f.content(t, ownerKey, "hello")
	assert.NotEqual(t, "hello", c.Ciphertext)

	req := withKey(owner, ownerKey)
	o := f.resolver.Resolve(ctx, req, c)
	assert.True(t, o.Disclosed)
	assert.Equal(t, disclosure.OwnerPath, o.Path)
	assert.Equal(t, "hello", string(o.Plaintext))
	assert.Equal(t, disclosure.NoNotice, req.Notice())
}

func TestResolve_OwnerWrongKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	c := f.content(t, ownerKey, "hello")

	wrong, err := envelope.GenerateRandomKey()
	require.NoError(t, err)

	req := withKey(owner, wrong)
	o := f.resolver.Resolve(ctx, req, c)
	assert.False(t, o.Disclosed)
	assert.Equal(t, disclosure.Failed, o.Path)
	assert.Nil(t, o.Plaintext)
	assert.Equal(t, disclosure.DecryptionFailed, req.Notice())
	require.Len(t, o.Failures, 1)
	assert.Equal(t, envelope.ErrAuthenticationFailed, o.Failures[0].Err)
}

func TestResolve_AccessCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	c := f.content(t, ownerKey, "hello")
	code := f.share(t, ownerKey, "hello")

	visitor := &disclosure.Request{PageID: page, Cookies: newJar(), AccessCode: code, ClientIP: "10.0.0.1"}
	o := f.resolver.Resolve(ctx, visitor, c)
	assert.True(t, o.Disclosed)
	assert.Equal(t, disclosure.AccessCodeQueryPath, o.Path)
	assert.Equal(t, "hello", string(o.Plaintext))
	assert.Equal(t, disclosure.DecryptionFromAccessCode, visitor.Notice())

	pageCookie, ok := visitor.Cookies.Cookie(disclosure.PageCookie(page))
	assert.True(t, ok)
	assert.NotEmpty(t, pageCookie)

	// Another visitor reusing the code has no cookie.
	f.now = f.now.Add(10 * time.Minute)
	second := &disclosure.Request{PageID: page, Cookies: newJar(), AccessCode: code}
	o = f.resolver.Resolve(ctx, second, c)
	assert.False(t, o.Disclosed)
	assert.Equal(t, disclosure.Encrypted, o.Path)
	assert.Equal(t, disclosure.DecryptionFailed, second.Notice())
	require.Len(t, o.Failures, 1)
	assert.Equal(t, grants.ErrNoMatchingGrant, o.Failures[0].Err)

	// The first visitor comes back with the cookie and no code.
	again := &disclosure.Request{PageID: page, Cookies: visitor.Cookies}
	o = f.resolver.Resolve(ctx, again, c)
	assert.True(t, o.Disclosed)
	assert.Equal(t, disclosure.AccessCodeSessionPath, o.Path)
	assert.Equal(t, disclosure.DecryptionFromAccessCode, again.Notice())

	// Past the grace window the cookie no longer works.
	f.now = f.now.Add(25 * time.Hour)
	late := &disclosure.Request{PageID: page, Cookies: visitor.Cookies}
	o = f.resolver.Resolve(ctx, late, c)
	assert.False(t, o.Disclosed)
	assert.Equal(t, disclosure.DecryptionFailed, late.Notice())
	require.Len(t, o.Failures, 1)
	assert.Equal(t, grants.ErrGrantExpired, o.Failures[0].Err)
}

func TestResolve_WrongAccessCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	c := f.content(t, ownerKey, "hello")
	f.share(t, ownerKey, "hello")

	req := &disclosure.Request{PageID: page, Cookies: newJar(), AccessCode: "WRONG"}
	o := f.resolver.Resolve(ctx, req, c)
	assert.False(t, o.Disclosed)
	assert.Equal(t, disclosure.Encrypted, o.Path)
	assert.Equal(t, disclosure.DecryptionFailed, req.Notice())
	require.Len(t, o.Failures, 1)
	assert.Equal(t, disclosure.AccessCodeQueryPath, o.Failures[0].Path)
	assert.True(t, errors.Is(o.Failures[0].Err, grants.ErrNoMatchingGrant))
}

func TestResolve_PublicKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	recipientKey := f.createKey(t, recipient)
	strangerKey := f.createKey(t, stranger)
	c := f.content(t, ownerKey, "hello")

	_, err := f.service.CreateAsymmetric(ctx, grants.AsymmetricRequest{
		PageID:      page,
		CreatedBy:   owner,
		RecipientID: recipient,
		OwnerKey:    ownerKey,
		Plaintext:   []byte("hello"),
	})
	require.NoError(t, err)

	req := withKey(recipient, recipientKey)
	o := f.resolver.Resolve(ctx, req, c)
	assert.True(t, o.Disclosed)
	assert.Equal(t, disclosure.PublicKeyPath, o.Path)
	assert.Equal(t, "hello", string(o.Plaintext))
	assert.Equal(t, disclosure.DecryptionFromPublicKey, req.Notice())

	u := withKey(stranger, strangerKey)
	o = f.resolver.Resolve(ctx, u, c)
	assert.False(t, o.Disclosed)
	assert.Nil(t, o.Plaintext)
	assert.Equal(t, disclosure.EncryptedPage, u.Notice())
}

func TestResolve_Anonymous(t *testing.T) {
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	c := f.content(t, ownerKey, "hello")

	req := &disclosure.Request{PageID: page}
	o := f.resolver.Resolve(context.Background(), req, c)
	assert.False(t, o.Disclosed)
	assert.Equal(t, disclosure.Encrypted, o.Path)
	assert.Empty(t, o.Failures)
	assert.Equal(t, disclosure.EncryptedPage, req.Notice())
}

func TestResolve_Memoized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	c := f.content(t, ownerKey, "hello")
	code := f.share(t, ownerKey, "hello")

	r, restore := metrics.Install()
	defer restore()

	req := &disclosure.Request{PageID: page, Cookies: newJar(), AccessCode: code}
	first := f.resolver.Resolve(ctx, req, c)
	second := f.resolver.Resolve(ctx, req, c)
	assert.Same(t, first, second)
	assert.True(t, second.Disclosed)
	assert.Equal(t, int64(1), r.Total("pagecrypt.grants.redeemed", map[string]string{"kind": "symmetric"}))
}

func TestResolve_NoticeOnlyForViewedPage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	c := f.content(t, ownerKey, "hello")
	c.PageID = otherPage

	req := &disclosure.Request{PageID: page}
	o := f.resolver.Resolve(ctx, req, c)
	assert.Equal(t, disclosure.EncryptedPage, o.Notice)
	assert.Equal(t, disclosure.NoNotice, req.Notice())
}

type limiter struct {
	allow bool
	fails int
}

func (l *limiter) Allow(ctx context.Context, key string) (bool, error) { return l.allow, nil }

func (l *limiter) Fail(ctx context.Context, key string) error {
	l.fails++
	return nil
}

func TestRedeemAccessCode_Throttle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	code := f.share(t, ownerKey, "hello")

	l := &limiter{allow: true}
	resolver := disclosure.NewResolver(f.service, l)
	req := &disclosure.Request{PageID: page, Cookies: newJar(), ClientIP: "10.0.0.1"}

	_, err := resolver.RedeemAccessCode(ctx, req, page, "wrong")
	assert.True(t, errors.Is(err, grants.ErrNoMatchingGrant))
	assert.Equal(t, 1, l.fails)

	l.allow = false
	_, err = resolver.RedeemAccessCode(ctx, req, page, code)
	assert.Equal(t, disclosure.ErrThrottled, err)

	l.allow = true
	red, err := resolver.RedeemAccessCode(ctx, req, page, code)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(red.Plaintext))
	assert.Equal(t, 1, l.fails)

	v, ok := req.Cookies.Cookie(disclosure.PageCookie(page))
	require.True(t, ok)
	assert.Equal(t, red.Key.Encode(), v)
}

func TestRedeemAccessCode_PageLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerKey := f.createKey(t, owner)
	f.share(t, ownerKey, "hello")

	perClient := throttle.NewMemory()
	perClient.Limit = 3
	perPage := throttle.NewMemory()
	perPage.Limit = 5

	resolver := disclosure.NewResolver(f.service, perClient)
	resolver.PageLimiter = perPage

	var throttled int
	for i := 0; i < 20; i++ {
		req := &disclosure.Request{PageID: page, Cookies: newJar(), ClientIP: fmt.Sprintf("10.0.0.%d", i)}
		_, err := resolver.RedeemAccessCode(ctx, req, page, "WRONG")
		if err == disclosure.ErrThrottled {
			throttled++
		}
	}
	assert.Equal(t, 15, throttled)

	other := &disclosure.Request{PageID: otherPage, Cookies: newJar(), ClientIP: "10.0.0.1"}
	_, err := resolver.RedeemAccessCode(ctx, other, otherPage, "WRONG")
	assert.True(t, errors.Is(err, grants.ErrNoMatchingGrant), "other pages keep their own budget")
}

func TestPageCookie(t *testing.T) {
	assert.Equal(t, "pageencryption-userkey-acode-42", disclosure.PageCookie(42))
}

func TestNoticeText(t *testing.T) {
	var n disclosure.Notice
	require.NoError(t, n.UnmarshalText([]byte("decryption-from-public-key")))
	assert.Equal(t, disclosure.DecryptionFromPublicKey, n)
	assert.Error(t, n.UnmarshalText([]byte("shrug")))

	var p disclosure.Path
	require.NoError(t, p.UnmarshalText([]byte("access-code-session")))
	assert.Equal(t, disclosure.AccessCodeSessionPath, p)
	assert.Error(t, p.UnmarshalText([]byte("Path(99)")))
}
