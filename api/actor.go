package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Headers the fronting host sets to identify the requester.
const (
	HeaderUserID   = "X-Pagecrypt-User-Id"
	HeaderUserName = "X-Pagecrypt-User-Name"
	HeaderGroups   = "X-Pagecrypt-Groups"
	HeaderRights   = "X-Pagecrypt-Rights"
)

// RightCreateEncrypted allows creating pages in an encrypted namespace.
const RightCreateEncrypted = "pageencryption-cancreateencryption"

// DefaultAdmins are the groups allowed to administer grants.
var DefaultAdmins = []string{"sysop", "bureaucrat", "interface-admin"}

// Actor is the user behind a request, as resolved by the host.
type Actor struct {
	ID     int64
	Name   string
	Groups []string
	Rights []string
}

// Anonymous reports whether the request carries no user.
func (a *Actor) Anonymous() bool {
	return a.ID == 0
}

// Can reports whether the actor has right.
func (a *Actor) Can(right string) bool {
	return contains(a.Rights, right)
}

// IdentityFunc resolves the actor of a request.
type IdentityFunc func(*http.Request) (*Actor, error)

// IdentifyFromHeaders reads the actor from the X-Pagecrypt-* headers. A
// request without a user id is anonymous.
func IdentifyFromHeaders(r *http.Request) (*Actor, error) {
	a := &Actor{
		Name:   r.Header.Get(HeaderUserName),
		Groups: splitList(r.Header.Get(HeaderGroups)),
		Rights: splitList(r.Header.Get(HeaderRights)),
	}
	if v := r.Header.Get(HeaderUserID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 0 {
			return nil, errors.Errorf("api: invalid %s %q", HeaderUserID, v)
		}
		a.ID = id
	}
	return a, nil
}

// Admins are the group and user names allowed to administer grants.
type Admins []string

// NewAdmins returns the default admin groups plus names.
func NewAdmins(names ...string) Admins {
	a := append(Admins{}, DefaultAdmins...)
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" && !contains(a, n) {
			a = append(a, n)
		}
	}
	return a
}

// Authorized reports whether actor is an admin, by group or by user name.
// Anonymous actors never are.
func (a Admins) Authorized(actor *Actor) bool {
	if actor.Anonymous() {
		return false
	}
	for _, name := range a {
		if contains(actor.Groups, name) || (actor.Name != "" && actor.Name == name) {
			return true
		}
	}
	return false
}

// ClientIP returns the remote address of r. X-Forwarded-For is ignored.
func ClientIP(r *http.Request) string {
	return TrustedProxies(nil).ClientIP(r)
}

// TrustedProxies are the networks allowed to report the client address in
// X-Forwarded-For.
type TrustedProxies []*net.IPNet

// ParseTrustedProxies parses CIDRs or bare addresses.
func ParseTrustedProxies(list []string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			ip := net.ParseIP(s)
			if ip == nil {
				return nil, errors.Errorf("api: invalid proxy address %q", s)
			}
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip, bits = ip.To4(), 8*net.IPv4len
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return nil, errors.Wrapf(err, "api: invalid proxy network %q", s)
		}
		out = append(out, n)
	}
	return out, nil
}

func (p TrustedProxies) trusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range p {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the remote address of r. When the request came through
// trusted proxies, the nearest X-Forwarded-For hop that is not a trusted
// proxy is returned instead.
func (p TrustedProxies) ClientIP(r *http.Request) string {
	addr, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		addr = r.RemoteAddr
	}
	if !p.trusted(addr) {
		return addr
	}

	hops := splitList(strings.Join(r.Header.Values("X-Forwarded-For"), ","))
	for i := len(hops) - 1; i >= 0; i-- {
		if !p.trusted(hops[i]) {
			return hops[i]
		}
		addr = hops[i]
	}
	return addr
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
