package middleware

import (
	"context"
	"net/http"

	"github.com/remind101/pagecrypt/httpx"
)

// Background adapts an httpx.Handler to an http.Handler, starting from the
// request's context. Use this as the entry point from an http.Server.
type Background struct {
	// The wrapped httpx.Handler to call down to.
	handler httpx.Handler
}

// BackgroundContext wraps h.
func BackgroundContext(h httpx.Handler) *Background {
	return &Background{
		handler: h,
	}
}

// ServeHTTP implements the http.Handler interface. Errors that reach this
// point have nobody left to handle them, so the error middleware should be
// installed below it.
func (h *Background) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.ServeHTTPContext(r.Context(), w, r)
}

func (h *Background) ServeHTTPContext(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return h.handler.ServeHTTPContext(ctx, w, r)
}
