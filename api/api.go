// Package api is the HTTP surface of pagecrypt: key setup, page reads and
// writes through the content interceptor, access code redemption, and grant
// administration.
//
// The host authenticates users and forwards their identity in the
// X-Pagecrypt-* headers. Session keys travel in httpOnly cookies.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/content"
	"github.com/remind101/pagecrypt/disclosure"
	"github.com/remind101/pagecrypt/grants"
	"github.com/remind101/pagecrypt/httpx"
	"github.com/remind101/pagecrypt/keys"
)

// Server serves the API.
type Server struct {
	Keys     *keys.Registry
	Grants   *grants.Service
	Resolver *disclosure.Resolver
	Content  *content.Interceptor

	// Identify resolves the actor of a request. Defaults to
	// IdentifyFromHeaders.
	Identify IdentityFunc

	Cookies httpx.CookieOptions
	Admins  Admins

	// Proxies may report the client address. Without any, the remote
	// address is the client.
	Proxies TrustedProxies
}

// Router returns the routes of s.
func (s *Server) Router() *httpx.Router {
	r := httpx.NewRouter()

	r.HandleFunc("/keys", s.SetupKey).Methods("POST")
	r.HandleFunc("/session", s.Logout).Methods("DELETE")

	r.HandleFunc("/pages/{page:[0-9]+}", s.ReadPage).Methods("GET")
	r.HandleFunc("/pages/{page:[0-9]+}", s.SavePage).Methods("PUT")
	r.HandleFunc("/pages/{page:[0-9]+}/access-code", s.RedeemAccessCode).Methods("POST")
	r.HandleFunc("/pages/{page:[0-9]+}/grants", s.ListGrants).Methods("GET")
	r.HandleFunc("/pages/{page:[0-9]+}/grants", s.CreateGrant).Methods("POST")

	r.HandleFunc("/grants/purge", s.PurgeGrants).Methods("POST")
	r.HandleFunc("/grants/{kind}/{id}", s.UpdateGrant).Methods("PATCH")
	r.HandleFunc("/grants/{kind}/{id}", s.DeleteGrant).Methods("DELETE")

	return r
}

func (s *Server) actor(r *http.Request) (*Actor, error) {
	identify := s.Identify
	if identify == nil {
		identify = IdentifyFromHeaders
	}
	a, err := identify(r)
	if err != nil {
		return nil, badRequest(err)
	}
	return a, nil
}

func (s *Server) signedIn(r *http.Request) (*Actor, error) {
	a, err := s.actor(r)
	if err != nil {
		return nil, err
	}
	if a.Anonymous() {
		return nil, errUnauthenticated
	}
	return a, nil
}

func (s *Server) cookieJar(w http.ResponseWriter, r *http.Request) *httpx.CookieJar {
	return httpx.NewCookieJar(w, r, s.Cookies)
}

// request builds the disclosure state of one request for pageID.
func (s *Server) request(w http.ResponseWriter, r *http.Request, a *Actor, pageID int64) *disclosure.Request {
	q := r.URL.Query()
	noTrack, _ := strconv.ParseBool(q.Get("no_track"))
	return &disclosure.Request{
		ActorID:    a.ID,
		PageID:     pageID,
		Cookies:    s.cookieJar(w, r),
		AccessCode: q.Get("acode"),
		NoTrack:    noTrack,
		ClientIP:   s.Proxies.ClientIP(r),
		UserAgent:  r.UserAgent(),
	}
}

func pageID(ctx context.Context) (int64, error) {
	id, err := strconv.ParseInt(httpx.Vars(ctx)["page"], 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(errors.New("api: invalid page id"))
	}
	return id, nil
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest(errors.Wrap(err, "api: invalid request body"))
	}
	return nil
}

func encode(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
