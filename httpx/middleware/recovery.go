package middleware

import (
	"context"
	"net/http"

	"github.com/remind101/pagecrypt/errctx"
	"github.com/remind101/pagecrypt/httpx"
)

// Recovery is a middleware that will recover from panics and return the error.
type Recovery struct {
	// handler is the wrapped httpx.Handler.
	handler httpx.Handler
}

// Recover wraps h.
func Recover(h httpx.Handler) *Recovery {
	return &Recovery{handler: h}
}

// ServeHTTPContext implements the httpx.Handler interface. It recovers from
// panics and returns an error, with the panic's stack, for upstream
// middleware to handle.
func (h *Recovery) ServeHTTPContext(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = errctx.Recover(ctx, v)
		}
	}()

	return h.handler.ServeHTTPContext(ctx, w, r)
}
