package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/remind101/pagecrypt/httpx"
	"github.com/remind101/pagecrypt/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseTimeReporter(t *testing.T) {
	fake, restore := metrics.Install()
	defer restore()

	r := httpx.NewRouter()
	r.HandleFunc("/pages/{page}", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}).Methods("GET")
	r.HandleFunc("/fail", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return httpx.NewError(http.StatusConflict, errors.New("conflict"))
	}).Methods("POST")

	h := NewError(ReportResponseTime(r, r))
	h.ServeHTTPContext(context.Background(), httptest.NewRecorder(), httptest.NewRequest("GET", "/pages/12", nil))
	h.ServeHTTPContext(context.Background(), httptest.NewRecorder(), httptest.NewRequest("POST", "/fail", nil))

	require.Len(t, fake.Timings, 2)
	assert.Equal(t, "http.request", fake.Timings[0].Name)
	assert.Equal(t, "GET /pages/{page}", fake.Timings[0].Tags["route"])
	assert.Equal(t, "204", fake.Timings[0].Tags["status"])
	assert.Equal(t, "POST /fail", fake.Timings[1].Tags["route"])
	assert.Equal(t, "409", fake.Timings[1].Tags["status"])
}

func TestChain(t *testing.T) {
	var order []string
	link := func(name string) Link {
		return func(h httpx.Handler) httpx.Handler {
			return httpx.HandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				order = append(order, name)
				return h.ServeHTTPContext(ctx, w, r)
			})
		}
	}

	h := NewChain(link("b")).Prepend(link("a")).Append(link("c")).ThenHandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		order = append(order, "handler")
		return nil
	})

	assert.NoError(t, h.ServeHTTPContext(context.Background(), httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil)))
	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}
