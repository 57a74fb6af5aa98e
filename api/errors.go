package api

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/content"
	"github.com/remind101/pagecrypt/crypto/envelope"
	"github.com/remind101/pagecrypt/disclosure"
	"github.com/remind101/pagecrypt/grants"
	"github.com/remind101/pagecrypt/httpx"
	"github.com/remind101/pagecrypt/keys"
	"github.com/remind101/pagecrypt/store"
)

var (
	errUnauthenticated = httpx.NewError(http.StatusUnauthorized, errors.New("api: sign in required"))
	errForbidden       = httpx.NewError(http.StatusForbidden, errors.New("api: not allowed"))
	errNotOwner        = httpx.NewError(http.StatusForbidden, errors.New("api: only the page author can share it"))
)

// statuses maps domain errors to HTTP statuses. Anything else is a 500.
var statuses = []struct {
	err    error
	status int
}{
	{store.ErrNotFound, http.StatusNotFound},
	{store.ErrAlreadyConsumed, http.StatusConflict},
	{keys.ErrWrongPassword, http.StatusForbidden},
	{keys.ErrUserKeyNotSet, http.StatusConflict},
	{keys.ErrKeyExists, http.StatusConflict},
	{envelope.ErrAuthenticationFailed, http.StatusForbidden},
	{grants.ErrNoMatchingGrant, http.StatusForbidden},
	{grants.ErrGrantExpired, http.StatusGone},
	{grants.ErrKeyMaterialMissing, http.StatusUnprocessableEntity},
	{disclosure.ErrThrottled, http.StatusTooManyRequests},
	{content.ErrPermissionDenied, http.StatusForbidden},
}

// classify gives known domain errors their HTTP status.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *httpx.StatusError
	if errors.As(err, &se) {
		return err
	}
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return httpx.NewError(s.status, err)
		}
	}
	return err
}

func badRequest(err error) error {
	return httpx.NewError(http.StatusBadRequest, err)
}
