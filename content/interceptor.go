package content

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/crypto/envelope"
	"github.com/remind101/pagecrypt/disclosure"
	"github.com/remind101/pagecrypt/keys"
	"github.com/remind101/pagecrypt/logger"
	"github.com/remind101/pagecrypt/store"
)

// Resolver resolves encrypted content for a request.
type Resolver interface {
	Resolve(ctx context.Context, req *disclosure.Request, c disclosure.Content) *disclosure.Outcome
}

// View is what a requester sees of a revision. The stored revision is never
// modified.
type View struct {
	Revision *Revision

	// Text is the plaintext when disclosed, otherwise the stored text.
	Text string

	Encrypted bool
	Disclosed bool
	Path      disclosure.Path
	Notice    disclosure.Notice
}

// Interceptor sits between the revision store and its readers and writers.
type Interceptor struct {
	Policy    NamespacePolicy
	Resolver  Resolver
	Revisions RevisionStore

	// Now returns the current time.
	Now func() time.Time
}

// NewInterceptor returns an Interceptor with the default namespace policy.
func NewInterceptor(resolver Resolver, revisions RevisionStore) *Interceptor {
	return &Interceptor{
		Policy:    NewNamespacePolicy(),
		Resolver:  resolver,
		Revisions: revisions,
		Now:       time.Now,
	}
}

// MockUpContent returns the view of rev for req. Content outside the policy
// passes through. Otherwise the resolver decides, and a failed resolution
// leaves the ciphertext in place. It never fails.
func (i *Interceptor) MockUpContent(ctx context.Context, rev *Revision, req *disclosure.Request) *View {
	v := &View{Revision: rev, Text: rev.Text, Path: disclosure.NotEncrypted}
	if !i.Policy.Encrypted(rev.Namespace) {
		return v
	}

	o := i.Resolver.Resolve(ctx, req, disclosure.Content{
		RevisionID: rev.ID,
		PageID:     rev.PageID,
		AuthorID:   rev.AuthorID,
		Ciphertext: rev.Text,
	})
	v.Encrypted = true
	v.Path = o.Path
	v.Notice = o.Notice
	if o.Disclosed {
		v.Disclosed = true
		v.Text = string(o.Plaintext)
	}
	return v
}

// EncryptOnSave encrypts plaintext under the writer's session key. Without a
// session key it fails with keys.ErrUserKeyNotSet.
func (i *Interceptor) EncryptOnSave(ctx context.Context, plaintext string, req *disclosure.Request) (string, error) {
	key, ok := req.SessionKey()
	if !ok {
		return "", keys.ErrUserKeyNotSet
	}
	return envelope.Encrypt([]byte(plaintext), key)
}

// Read returns the view of the latest revision of a page.
func (i *Interceptor) Read(ctx context.Context, req *disclosure.Request, pageID int64) (*View, error) {
	rev, err := i.Revisions.LatestRevision(ctx, pageID)
	if err != nil {
		return nil, err
	}
	return i.MockUpContent(ctx, rev, req), nil
}

// Save stores a new revision of a page written by req.ActorID. In an
// encrypted namespace only ciphertext reaches the store, and any encryption
// failure aborts the save.
func (i *Interceptor) Save(ctx context.Context, req *disclosure.Request, pageID int64, ns int, text string, mayCreate bool) (*Revision, error) {
	first, err := i.Revisions.FirstRevision(ctx, pageID)
	switch {
	case errors.Cause(err) == store.ErrNotFound:
		first = nil
	case err != nil:
		return nil, err
	default:
		ns = first.Namespace
	}
	if !i.Policy.MayEdit(ns, req.ActorID, first, mayCreate) {
		return nil, ErrPermissionDenied
	}

	if i.Policy.Encrypted(ns) {
		if text, err = i.EncryptOnSave(ctx, text, req); err != nil {
			return nil, err
		}
	}

	rev := &Revision{
		PageID:    pageID,
		Namespace: ns,
		AuthorID:  req.ActorID,
		Text:      text,
		CreatedAt: i.Now(),
	}
	if err := i.Revisions.InsertRevision(ctx, rev); err != nil {
		return nil, err
	}
	logger.Info(ctx, "content.saved", "page_id", pageID, "revision_id", rev.ID, "encrypted", i.Policy.Encrypted(ns))
	return rev, nil
}
