package httpx

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// CookieOptions are the attributes every cookie set through a CookieJar
// carries.
type CookieOptions struct {
	// Prefix is prepended to every cookie name.
	Prefix string
	Path   string
	Domain string
	Secure bool

	// SameSite is one of "lax", "strict" or "none". Anything else is lax.
	SameSite string

	// Remember is the lifetime of cookies that aren't session cookies.
	Remember time.Duration
}

// DefaultCookieOptions are secure, same-site cookies on the whole site that
// are remembered for 30 days.
var DefaultCookieOptions = CookieOptions{
	Path:     "/",
	Secure:   true,
	SameSite: "lax",
	Remember: 30 * 24 * time.Hour,
}

func (o CookieOptions) sameSite() http.SameSite {
	switch strings.ToLower(o.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// CookieJar reads the cookies of a request and writes Set-Cookie headers to
// its response. Cookies set during the request are visible to later reads.
// All cookies are httpOnly.
type CookieJar struct {
	Options CookieOptions

	// Now returns the current time.
	Now func() time.Time

	r *http.Request
	w http.ResponseWriter

	mu      sync.Mutex
	pending map[string]*string
}

// NewCookieJar returns a CookieJar for one request and response.
func NewCookieJar(w http.ResponseWriter, r *http.Request, opts CookieOptions) *CookieJar {
	return &CookieJar{
		Options: opts,
		Now:     time.Now,
		r:       r,
		w:       w,
		pending: make(map[string]*string),
	}
}

// Cookie returns the value of the named cookie.
func (j *CookieJar) Cookie(name string) (string, bool) {
	name = j.Options.Prefix + name

	j.mu.Lock()
	v, ok := j.pending[name]
	j.mu.Unlock()
	if ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}

	c, err := j.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

// SetCookie sets a cookie. Session cookies have no expiry, others expire
// after Options.Remember.
func (j *CookieJar) SetCookie(name, value string, session bool) {
	c := j.cookie(name, value)
	if !session && j.Options.Remember > 0 {
		c.Expires = j.Now().Add(j.Options.Remember)
		c.MaxAge = int(j.Options.Remember / time.Second)
	}
	j.set(c, &value)
}

// ClearCookie expires a cookie.
func (j *CookieJar) ClearCookie(name string) {
	c := j.cookie(name, "")
	c.Expires = time.Unix(0, 0)
	c.MaxAge = -1
	j.set(c, nil)
}

func (j *CookieJar) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     j.Options.Prefix + name,
		Value:    value,
		Path:     j.Options.Path,
		Domain:   j.Options.Domain,
		Secure:   j.Options.Secure,
		HttpOnly: true,
		SameSite: j.Options.sameSite(),
	}
}

func (j *CookieJar) set(c *http.Cookie, v *string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending[c.Name] = v
	http.SetCookie(j.w, c)
}
