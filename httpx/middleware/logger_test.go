package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/remind101/pagecrypt/httpx"
	"github.com/remind101/pagecrypt/logger"
	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	b := new(bytes.Buffer)

	l := Log(httpx.HandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(201)
		return nil
	}))
	now := time.Unix(0, 0)
	l.now = func() time.Time {
		now = now.Add(5 * time.Millisecond)
		return now
	}
	h := InsertLogger(l, StdLogger(logger.INFO, b))

	resp := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	ctx := httpx.WithRequestID(context.Background(), "abc")

	assert.NoError(t, h.ServeHTTPContext(ctx, resp, req))
	assert.Equal(t, "status=info request request_id=abc method=GET path=/ status=201 ms=5\n", b.String())
}
