package api

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/disclosure"
	"github.com/remind101/pagecrypt/keys"
)

// SetupKeyRequest is the body of POST /keys.
type SetupKeyRequest struct {
	Password string `json:"password"`
	Reset    bool   `json:"reset"`
}

// KeySetup reports what SetupKey did.
type KeySetup struct {
	Action keys.Action `json:"action"`
	Reset  bool        `json:"reset,omitempty"`

	// ProtectedKey is returned once, for the user to back up.
	ProtectedKey string `json:"protected_key,omitempty"`
}

// SetupKey unlocks, creates or replaces the actor's key and sets the user
// key cookie.
func (s *Server) SetupKey(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	a, err := s.signedIn(r)
	if err != nil {
		return err
	}

	var req SetupKeyRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if req.Password == "" {
		return badRequest(errors.New("api: password is required"))
	}

	setup, err := s.Keys.SetupKey(ctx, a.ID, req.Password, req.Reset)
	if err != nil {
		return classify(err)
	}

	s.cookieJar(w, r).SetCookie(disclosure.UserKeyCookie, setup.SessionKey.Encode(), false)
	return encode(w, http.StatusOK, KeySetup{
		Action:       setup.Action,
		Reset:        setup.Reset,
		ProtectedKey: setup.ProtectedKey,
	})
}

// Logout clears the user key cookie.
func (s *Server) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	s.cookieJar(w, r).ClearCookie(disclosure.UserKeyCookie)
	w.WriteHeader(http.StatusNoContent)
	return nil
}
