package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/remind101/pagecrypt/httpx"
	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		header http.Header
		id     string
	}{
		{http.Header{http.CanonicalHeaderKey("X-Request-ID"): []string{"1234"}}, "1234"},
		{http.Header{http.CanonicalHeaderKey("Request-ID"): []string{"1234"}}, "1234"},
		{http.Header{http.CanonicalHeaderKey("Foo"): []string{"1234"}}, "generated"},
	}

	for _, tt := range tests {
		var got string
		m := ExtractRequestID(httpx.HandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			got = httpx.RequestID(ctx)
			assert.Equal(t, got, httpx.RequestID(r.Context()))
			return nil
		}))
		m.Generate = func() string { return "generated" }

		resp := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/", nil)
		req.Header = tt.header

		assert.NoError(t, m.ServeHTTPContext(context.Background(), resp, req))
		assert.Equal(t, tt.id, got)
		assert.Equal(t, tt.id, resp.Header().Get("X-Request-Id"))
	}
}
