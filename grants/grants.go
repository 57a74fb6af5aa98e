// Package grants stores and redeems the grants that disclose an encrypted
// page to someone other than its author.
//
// A symmetric grant is an access code: a short random password wrapping a
// one-time key, under which a copy of the page text is encrypted. The first
// redemption consumes it; afterwards only the holder of the one-time key
// (handed out in a cookie) can read it again, and only for a grace window.
//
// An asymmetric grant is the page text sealed with box for one named
// recipient, using the author's private key and the recipient's public key.
package grants

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNoMatchingGrant is returned when no grant applies to the request.
	ErrNoMatchingGrant = errors.New("grants: no matching grant")

	// ErrGrantExpired is returned when the only grants that would apply
	// are past their expiration date or grace window.
	ErrGrantExpired = errors.New("grants: grant expired")

	// ErrKeyMaterialMissing is returned for the public key flows when the
	// sender or recipient has no registered key pair.
	ErrKeyMaterialMissing = errors.New("grants: no registered key pair")

	// ErrCodeSpaceExhausted is returned when no unused access code could
	// be generated for a page.
	ErrCodeSpaceExhausted = errors.New("grants: could not generate a unique access code")
)

// Kind tells symmetric and asymmetric grants apart.
type Kind int

const (
	Symmetric Kind = iota + 1
	Asymmetric
)

func (k Kind) String() string {
	switch k {
	case Symmetric:
		return "symmetric"
	case Asymmetric:
		return "asymmetric"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses "symmetric" or "asymmetric".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "symmetric":
		return Symmetric, nil
	case "asymmetric":
		return Asymmetric, nil
	default:
		return 0, errors.Errorf("grants: unknown grant kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k != Symmetric && k != Asymmetric {
		return nil, errors.Errorf("grants: unknown grant kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	kind, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Grant is either kind of grant. Exactly one of Symmetric and Asymmetric is
// set, matching Kind.
type Grant struct {
	Kind      Kind
	ID        string
	PageID    int64
	CreatedBy int64

	ExpirationDate *time.Time
	Viewed         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Symmetric  *SymmetricPayload
	Asymmetric *AsymmetricPayload
}

// SymmetricPayload is what an access code grant stores.
type SymmetricPayload struct {
	RevisionID int64

	// ProtectedKey is the one-time key wrapped under the access code.
	ProtectedKey string

	// EncryptedContent is the page text under the one-time key.
	EncryptedContent string

	// EncryptedPassword is the access code under the author's session
	// key, so the author can look it up again.
	EncryptedPassword string

	// ViewedMetadata describes who redeemed the code. It stays nil when
	// the redemption asked not to be tracked.
	ViewedMetadata *ViewedMetadata
}

// AsymmetricPayload is what a public key grant stores.
type AsymmetricPayload struct {
	RecipientID      int64
	Nonce            string
	EncryptedContent string
}

// ViewedMetadata is recorded on the first redemption of an access code.
type ViewedMetadata struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}

// ParseViewedMetadata decodes the stored JSON form. An empty string yields nil.
func ParseViewedMetadata(s string) (*ViewedMetadata, error) {
	if s == "" {
		return nil, nil
	}
	var m ViewedMetadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// String returns the stored JSON form of m. A nil m yields "".
func (m *ViewedMetadata) String() string {
	if m == nil {
		return ""
	}
	b, _ := json.Marshal(m)
	return string(b)
}

// Expired reports whether the grant's expiration date has passed.
func (g *Grant) Expired(now time.Time) bool {
	return g.ExpirationDate != nil && now.After(*g.ExpirationDate)
}

// ViewedFilter restricts a Query on the viewed column.
type ViewedFilter int

const (
	AnyViewed ViewedFilter = iota
	OnlyViewed
	OnlyUnviewed
)

// Query selects grants. Zero fields don't constrain the result.
type Query struct {
	ID          string
	PageID      int64
	CreatedBy   int64
	RecipientID int64
	Viewed      ViewedFilter
}

// Empty reports whether q matches every grant.
func (q Query) Empty() bool {
	return q.ID == "" && q.PageID == 0 && q.CreatedBy == 0 && q.RecipientID == 0 && q.Viewed == AnyViewed
}

// Store persists grants. Implementations live in store/sqlstore and
// store/dynamostore.
type Store interface {
	InsertGrant(ctx context.Context, g *Grant) error

	// Grants returns the grants of kind matching q, in no particular
	// order.
	Grants(ctx context.Context, kind Kind, q Query) ([]*Grant, error)

	// MarkViewed sets viewed, and the viewed metadata for symmetric
	// grants, in a single conditional write that only succeeds while
	// viewed is unset. It returns store.ErrAlreadyConsumed otherwise,
	// and store.ErrNotFound for an unknown id.
	MarkViewed(ctx context.Context, kind Kind, id string, at time.Time, meta *ViewedMetadata) error

	// UpdateExpiration sets or clears the expiration date.
	UpdateExpiration(ctx context.Context, kind Kind, id string, exp *time.Time, at time.Time) error

	// DeleteGrants removes the grants matching q and returns how many
	// were removed. An empty q is refused.
	DeleteGrants(ctx context.Context, kind Kind, q Query) (int64, error)

	// PurgeExpired removes grants whose expiration date is before t.
	PurgeExpired(ctx context.Context, kind Kind, before time.Time) (int64, error)
}
