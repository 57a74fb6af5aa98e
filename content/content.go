// Package content is where stored page text is swapped for what a requester
// may read, and where plaintext is encrypted before it is persisted.
package content

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultNamespace is the namespace encrypted pages live in.
const DefaultNamespace = 2246

// ErrPermissionDenied is returned when the actor may not edit a page.
var ErrPermissionDenied = errors.New("content: permission denied")

// Revision is a stored revision of a page. In an encrypted namespace Text is
// ciphertext under the author's session key.
type Revision struct {
	ID        int64
	PageID    int64
	Namespace int
	AuthorID  int64
	Text      string
	CreatedAt time.Time
}

// RevisionStore is the host's revision storage.
type RevisionStore interface {
	// InsertRevision stores r and sets its ID.
	InsertRevision(ctx context.Context, r *Revision) error

	// LatestRevision returns the newest revision of a page, or
	// store.ErrNotFound.
	LatestRevision(ctx context.Context, pageID int64) (*Revision, error)

	// FirstRevision returns the oldest revision of a page, or
	// store.ErrNotFound. Its author is the page's encrypting identity.
	FirstRevision(ctx context.Context, pageID int64) (*Revision, error)
}

// NamespacePolicy is the set of namespaces whose content is encrypted.
type NamespacePolicy map[int]bool

// NewNamespacePolicy returns a policy covering namespaces. With none it
// covers DefaultNamespace.
func NewNamespacePolicy(namespaces ...int) NamespacePolicy {
	if len(namespaces) == 0 {
		namespaces = []int{DefaultNamespace}
	}
	p := make(NamespacePolicy, len(namespaces))
	for _, ns := range namespaces {
		p[ns] = true
	}
	return p
}

// ParseNamespacePolicy parses a comma separated list of namespace numbers.
func ParseNamespacePolicy(s string) (NamespacePolicy, error) {
	var namespaces []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		ns, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Wrapf(err, "content: bad namespace %q", f)
		}
		namespaces = append(namespaces, ns)
	}
	return NewNamespacePolicy(namespaces...), nil
}

// Encrypted reports whether content in ns is encrypted.
func (p NamespacePolicy) Encrypted(ns int) bool {
	return p[ns]
}

// MayEdit reports whether actor may edit or create a page in ns. first is
// the page's first revision, or nil for a new page. mayCreate is the host's
// answer to whether actor may create encrypted pages.
func (p NamespacePolicy) MayEdit(ns int, actorID int64, first *Revision, mayCreate bool) bool {
	if !p.Encrypted(ns) {
		return true
	}
	if actorID == 0 {
		return false
	}
	if first == nil {
		return mayCreate
	}
	return first.AuthorID == actorID
}
