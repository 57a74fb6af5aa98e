package dynamostore

import (
	"time"

	"github.com/remind101/pagecrypt/content"
	"github.com/remind101/pagecrypt/grants"
	"github.com/remind101/pagecrypt/keys"
)

// activeID is the range key of the item pointing at a user's enabled key.
const activeID = "#active"

type keyItem struct {
	UserID              int64  `dynamodbav:"user_id"`
	ID                  string `dynamodbav:"id"`
	ProtectedKey        string `dynamodbav:"protected_key"`
	PublicKey           string `dynamodbav:"public_key"`
	EncryptedPrivateKey string `dynamodbav:"encrypted_private_key"`
	Enabled             bool   `dynamodbav:"enabled"`
	CreatedAt           int64  `dynamodbav:"created_at"`
	UpdatedAt           int64  `dynamodbav:"updated_at"`
}

type activeItem struct {
	UserID int64  `dynamodbav:"user_id"`
	ID     string `dynamodbav:"id"`
	KeyID  string `dynamodbav:"key_id"`
}

func newKeyItem(r *keys.Record) keyItem {
	return keyItem{
		UserID:              r.UserID,
		ID:                  r.ID,
		ProtectedKey:        r.ProtectedKey,
		PublicKey:           r.PublicKey,
		EncryptedPrivateKey: r.EncryptedPrivateKey,
		Enabled:             r.Enabled,
		CreatedAt:           nanos(r.CreatedAt),
		UpdatedAt:           nanos(r.UpdatedAt),
	}
}

func (i keyItem) record() *keys.Record {
	return &keys.Record{
		ID:                  i.ID,
		UserID:              i.UserID,
		ProtectedKey:        i.ProtectedKey,
		PublicKey:           i.PublicKey,
		EncryptedPrivateKey: i.EncryptedPrivateKey,
		Enabled:             i.Enabled,
		CreatedAt:           fromNanos(i.CreatedAt),
		UpdatedAt:           fromNanos(i.UpdatedAt),
	}
}

// grantItem holds either kind of grant. Attributes of the other kind are
// omitted.
type grantItem struct {
	ID             string `dynamodbav:"id"`
	PageID         int64  `dynamodbav:"page_id"`
	CreatedBy      int64  `dynamodbav:"created_by"`
	ExpirationDate *int64 `dynamodbav:"expiration_date,omitempty"`
	Viewed         *int64 `dynamodbav:"viewed,omitempty"`
	CreatedAt      int64  `dynamodbav:"created_at"`
	UpdatedAt      int64  `dynamodbav:"updated_at"`

	EncryptedContent string `dynamodbav:"encrypted_content"`

	RevisionID        int64  `dynamodbav:"revision_id,omitempty"`
	ProtectedKey      string `dynamodbav:"protected_key,omitempty"`
	EncryptedPassword string `dynamodbav:"encrypted_password,omitempty"`
	ViewedMetadata    string `dynamodbav:"viewed_metadata,omitempty"`

	RecipientID int64  `dynamodbav:"recipient_id,omitempty"`
	Nonce       string `dynamodbav:"nonce,omitempty"`
}

func newGrantItem(g *grants.Grant) grantItem {
	i := grantItem{
		ID:             g.ID,
		PageID:         g.PageID,
		CreatedBy:      g.CreatedBy,
		ExpirationDate: nullNanos(g.ExpirationDate),
		Viewed:         nullNanos(g.Viewed),
		CreatedAt:      nanos(g.CreatedAt),
		UpdatedAt:      nanos(g.UpdatedAt),
	}
	switch {
	case g.Symmetric != nil:
		p := g.Symmetric
		i.RevisionID = p.RevisionID
		i.ProtectedKey = p.ProtectedKey
		i.EncryptedContent = p.EncryptedContent
		i.EncryptedPassword = p.EncryptedPassword
		i.ViewedMetadata = p.ViewedMetadata.String()
	case g.Asymmetric != nil:
		p := g.Asymmetric
		i.RecipientID = p.RecipientID
		i.Nonce = p.Nonce
		i.EncryptedContent = p.EncryptedContent
	}
	return i
}

func (i grantItem) grant(kind grants.Kind) (*grants.Grant, error) {
	g := &grants.Grant{
		Kind:           kind,
		ID:             i.ID,
		PageID:         i.PageID,
		CreatedBy:      i.CreatedBy,
		ExpirationDate: fromNullNanos(i.ExpirationDate),
		Viewed:         fromNullNanos(i.Viewed),
		CreatedAt:      fromNanos(i.CreatedAt),
		UpdatedAt:      fromNanos(i.UpdatedAt),
	}
	if kind == grants.Asymmetric {
		g.Asymmetric = &grants.AsymmetricPayload{
			RecipientID:      i.RecipientID,
			Nonce:            i.Nonce,
			EncryptedContent: i.EncryptedContent,
		}
		return g, nil
	}

	meta, err := grants.ParseViewedMetadata(i.ViewedMetadata)
	if err != nil {
		return nil, err
	}
	g.Symmetric = &grants.SymmetricPayload{
		RevisionID:        i.RevisionID,
		ProtectedKey:      i.ProtectedKey,
		EncryptedContent:  i.EncryptedContent,
		EncryptedPassword: i.EncryptedPassword,
		ViewedMetadata:    meta,
	}
	return g, nil
}

type revisionItem struct {
	PageID    int64  `dynamodbav:"page_id"`
	ID        int64  `dynamodbav:"id"`
	Namespace int    `dynamodbav:"namespace"`
	AuthorID  int64  `dynamodbav:"author_id"`
	Text      string `dynamodbav:"text"`
	CreatedAt int64  `dynamodbav:"created_at"`
}

func (i revisionItem) revision() *content.Revision {
	return &content.Revision{
		ID:        i.ID,
		PageID:    i.PageID,
		Namespace: i.Namespace,
		AuthorID:  i.AuthorID,
		Text:      i.Text,
		CreatedAt: fromNanos(i.CreatedAt),
	}
}

// Times are stored as UTC unix nanoseconds, as in sqlstore.
func nanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	n := t.UnixNano()
	return &n
}

func fromNullNanos(n *int64) *time.Time {
	if n == nil {
		return nil
	}
	t := fromNanos(*n)
	return &t
}
