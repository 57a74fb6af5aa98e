package disclosure

import (
	"strconv"
	"sync"

	"github.com/remind101/pagecrypt/crypto/envelope"
)

const (
	// UserKeyCookie carries the reader's session key.
	UserKeyCookie = "pageencryption-userkey"

	pageCookiePrefix = UserKeyCookie + "-acode-"
)

// PageCookie is the name of the cookie holding the one-time key of an access
// code redeemed for pageID.
func PageCookie(pageID int64) string {
	return pageCookiePrefix + strconv.FormatInt(pageID, 10)
}

// CookieJar is the host's cookie transport. Prefix, path, domain and the
// security attributes are the jar's business.
type CookieJar interface {
	Cookie(name string) (string, bool)

	// SetCookie sets a cookie. Session cookies expire with the browser;
	// others use the jar's remember-me expiry.
	SetCookie(name, value string, session bool)

	ClearCookie(name string)
}

// Request is the state of one content request. It carries who is asking, what
// they presented, and what has been resolved so far. It is safe for
// concurrent use.
type Request struct {
	// ActorID is the requesting user, or zero for an anonymous visitor.
	ActorID int64

	// PageID is the page being viewed. Only its resolution sets the
	// request notice.
	PageID int64

	Cookies CookieJar

	// AccessCode is the acode request parameter.
	AccessCode string

	// NoTrack asks that redemption not record IP and user agent.
	NoTrack   bool
	ClientIP  string
	UserAgent string

	// resolving serializes resolutions so a memoized outcome is never
	// computed twice.
	resolving sync.Mutex

	mu     sync.Mutex
	notice Notice
	memo   map[int64]*Outcome
}

// SessionKey returns the session key from the user key cookie.
func (r *Request) SessionKey() (envelope.Key, bool) {
	return r.cookieKey(UserKeyCookie)
}

func (r *Request) pageKey(pageID int64) (envelope.Key, bool) {
	return r.cookieKey(PageCookie(pageID))
}

func (r *Request) cookieKey(name string) (envelope.Key, bool) {
	if r.Cookies == nil {
		return envelope.Key{}, false
	}
	v, ok := r.Cookies.Cookie(name)
	if !ok || v == "" {
		return envelope.Key{}, false
	}
	key, err := envelope.DecodeKey(v)
	if err != nil {
		return envelope.Key{}, false
	}
	return key, true
}

func (r *Request) setCookie(name, value string, session bool) {
	if r.Cookies != nil {
		r.Cookies.SetCookie(name, value, session)
	}
}

// Notice returns the notice for the viewed page.
func (r *Request) Notice() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notice
}

func (r *Request) setNotice(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notice = n
}

func (r *Request) cached(revisionID int64) (*Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.memo[revisionID]
	return o, ok
}

func (r *Request) remember(revisionID int64, o *Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.memo == nil {
		r.memo = make(map[int64]*Outcome)
	}
	r.memo[revisionID] = o
}
