package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/remind101/pagecrypt/httpx"
	"github.com/stretchr/testify/assert"
)

type ctxKey struct{}

func TestBackground(t *testing.T) {
	m := BackgroundContext(httpx.HandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		assert.Equal(t, "v", ctx.Value(ctxKey{}))
		io.WriteString(w, `Ok`)
		return nil
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), ctxKey{}, "v"))
	resp := httptest.NewRecorder()

	m.ServeHTTP(resp, req)

	assert.Equal(t, `Ok`, resp.Body.String())
}
