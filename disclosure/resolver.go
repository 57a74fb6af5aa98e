// Package disclosure decides, for each read of encrypted content, which key
// opens it for the requester.
//
// The channels are tried in a fixed order and the first success wins:
//
//	owner                the author's own session key; failure is terminal
//	access-code-session  the one-time key cookie from an earlier redemption
//	access-code-query    the acode parameter, redeemed as a one-time code
//	public-key           a grant sealed for the requester's key pair
//
// Failures never escape Resolve. The ciphertext is returned untouched with a
// notice, and every failure is kept on the Outcome for logging.
package disclosure

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/crypto/envelope"
	"github.com/remind101/pagecrypt/grants"
	"github.com/remind101/pagecrypt/keys"
	"github.com/remind101/pagecrypt/logger"
	"github.com/remind101/pagecrypt/metrics"
)

var (
	// errNotApplicable marks a channel the request has no credential for.
	errNotApplicable = errors.New("disclosure: channel not applicable")

	// ErrThrottled is returned when too many access codes failed for a
	// page and client.
	ErrThrottled = errors.New("disclosure: too many failed access codes")
)

// Redeemer is the part of *grants.Service the resolver uses.
type Redeemer interface {
	RedeemSymmetric(ctx context.Context, pageID int64, code string, v grants.Visitor) (*grants.Redemption, error)
	RedeemSymmetricBySession(ctx context.Context, pageID int64, key envelope.Key, clientIP string) ([]byte, error)
	RedeemAsymmetric(ctx context.Context, pageID, recipientID int64, sessionKey envelope.Key) ([]byte, error)
}

// Limiter counts failed access codes. Implementations live in package
// throttle.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Fail(ctx context.Context, key string) error
}

// Content is an encrypted revision to resolve.
type Content struct {
	RevisionID int64
	PageID     int64
	AuthorID   int64
	Ciphertext string
}

// Failure is a channel that was tried and did not open the content.
type Failure struct {
	Path Path
	Err  error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

// Outcome is the result of resolving one revision.
type Outcome struct {
	Path   Path
	Notice Notice

	// Plaintext is set when Disclosed.
	Plaintext []byte
	Disclosed bool

	Failures []Failure
}

// Resolver resolves content reads.
type Resolver struct {
	// PageLimiter, when set, counts failed access codes per page across
	// all clients.
	PageLimiter Limiter

	grants  Redeemer
	limiter Limiter
}

// NewResolver returns a Resolver. limiter counts failures per page and
// client, and may be nil.
func NewResolver(r Redeemer, l Limiter) *Resolver {
	return &Resolver{grants: r, limiter: l}
}

type limit struct {
	limiter Limiter
	key     string
}

func (r *Resolver) limits(pageID int64, clientIP string) []limit {
	var out []limit
	if r.limiter != nil {
		out = append(out, limit{r.limiter, fmt.Sprintf("%d:%s", pageID, clientIP)})
	}
	if r.PageLimiter != nil {
		out = append(out, limit{r.PageLimiter, strconv.FormatInt(pageID, 10)})
	}
	return out
}

type strategy struct {
	path Path
	try  func(ctx context.Context, req *Request, c Content) ([]byte, error)
}

func (r *Resolver) strategies() []strategy {
	return []strategy{
		{AccessCodeSessionPath, r.tryAccessCodeSession},
		{AccessCodeQueryPath, r.tryAccessCodeQuery},
		{PublicKeyPath, r.tryPublicKey},
	}
}

// Resolve returns the outcome of reading c on behalf of req. Outcomes are
// memoized per revision for the lifetime of req, so redemption side effects
// happen at most once.
func (r *Resolver) Resolve(ctx context.Context, req *Request, c Content) *Outcome {
	req.resolving.Lock()
	defer req.resolving.Unlock()

	if o, ok := req.cached(c.RevisionID); ok {
		return o
	}

	o := r.resolve(ctx, req, c)
	req.remember(c.RevisionID, o)

	if c.PageID == req.PageID {
		req.setNotice(o.Notice)
	}

	metrics.Count("pagecrypt.disclosure", 1, map[string]string{"path": o.Path.String(), "notice": o.Notice.String()}, 1.0)
	logger.Debug(ctx, "disclosure.resolved",
		"page_id", c.PageID, "revision_id", c.RevisionID, "path", o.Path, "notice", o.Notice, "failures", len(o.Failures))
	for _, f := range o.Failures {
		logger.Debug(ctx, "disclosure.failure", "page_id", c.PageID, "path", f.Path, "error", f.Err)
	}
	return o
}

func (r *Resolver) resolve(ctx context.Context, req *Request, c Content) *Outcome {
	if req.ActorID != 0 && req.ActorID == c.AuthorID {
		plaintext, err := r.tryOwner(req, c)
		if err != nil {
			return &Outcome{
				Path:     Failed,
				Notice:   DecryptionFailed,
				Failures: []Failure{{OwnerPath, err}},
			}
		}
		return &Outcome{Path: OwnerPath, Notice: NoNotice, Plaintext: plaintext, Disclosed: true}
	}

	var failures []Failure
	for _, s := range r.strategies() {
		plaintext, err := s.try(ctx, req, c)
		if err == nil {
			return &Outcome{
				Path:      s.path,
				Notice:    successNotice(s.path),
				Plaintext: plaintext,
				Disclosed: true,
				Failures:  failures,
			}
		}
		if err != errNotApplicable {
			failures = append(failures, Failure{s.path, err})
		}
	}

	return &Outcome{Path: Encrypted, Notice: failureNotice(failures), Failures: failures}
}

func successNotice(p Path) Notice {
	if p == PublicKeyPath {
		return DecryptionFromPublicKey
	}
	return DecryptionFromAccessCode
}

// failureNotice is DecryptionFailed when an access code or page cookie was
// presented, or a key failed to authenticate. It is EncryptedPage when no
// credential applied.
func failureNotice(failures []Failure) Notice {
	for _, f := range failures {
		switch {
		case f.Path == AccessCodeSessionPath, f.Path == AccessCodeQueryPath:
			return DecryptionFailed
		case errors.Is(f.Err, envelope.ErrAuthenticationFailed):
			return DecryptionFailed
		}
	}
	return EncryptedPage
}

func (r *Resolver) tryOwner(req *Request, c Content) ([]byte, error) {
	key, ok := req.SessionKey()
	if !ok {
		return nil, keys.ErrUserKeyNotSet
	}
	return envelope.Decrypt(c.Ciphertext, key)
}

func (r *Resolver) tryAccessCodeSession(ctx context.Context, req *Request, c Content) ([]byte, error) {
	key, ok := req.pageKey(c.PageID)
	if !ok {
		return nil, errNotApplicable
	}
	return r.grants.RedeemSymmetricBySession(ctx, c.PageID, key, req.ClientIP)
}

func (r *Resolver) tryAccessCodeQuery(ctx context.Context, req *Request, c Content) ([]byte, error) {
	if req.AccessCode == "" {
		return nil, errNotApplicable
	}
	red, err := r.RedeemAccessCode(ctx, req, c.PageID, req.AccessCode)
	if err != nil {
		return nil, err
	}
	return red.Plaintext, nil
}

func (r *Resolver) tryPublicKey(ctx context.Context, req *Request, c Content) ([]byte, error) {
	if req.ActorID == 0 {
		return nil, errNotApplicable
	}
	key, ok := req.SessionKey()
	if !ok {
		return nil, errNotApplicable
	}
	plaintext, err := r.grants.RedeemAsymmetric(ctx, c.PageID, req.ActorID, key)
	if errors.Is(err, grants.ErrKeyMaterialMissing) {
		return nil, errNotApplicable
	}
	return plaintext, err
}

// RedeemAccessCode redeems code for pageID and issues the page cookie that
// allows re-reads within the grace window. Failed codes count against the
// limiter.
func (r *Resolver) RedeemAccessCode(ctx context.Context, req *Request, pageID int64, code string) (*grants.Redemption, error) {
	limits := r.limits(pageID, req.ClientIP)
	for _, l := range limits {
		ok, err := l.limiter.Allow(ctx, l.key)
		if err != nil {
			logger.Error(ctx, "disclosure.limiter_failed", "error", err)
		} else if !ok {
			metrics.Count("pagecrypt.throttled", 1, nil, 1.0)
			return nil, ErrThrottled
		}
	}

	red, err := r.grants.RedeemSymmetric(ctx, pageID, code, grants.Visitor{
		IP:        req.ClientIP,
		UserAgent: req.UserAgent,
		NoTrack:   req.NoTrack,
	})
	if err != nil {
		if errors.Is(err, grants.ErrNoMatchingGrant) {
			for _, l := range limits {
				if ferr := l.limiter.Fail(ctx, l.key); ferr != nil {
					logger.Error(ctx, "disclosure.limiter_failed", "error", ferr)
				}
			}
		}
		return nil, err
	}

	req.setCookie(PageCookie(pageID), red.Key.Encode(), true)
	return red, nil
}
