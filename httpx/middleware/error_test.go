package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/remind101/pagecrypt/httpx"
	"github.com/remind101/pagecrypt/reporter"
	"github.com/stretchr/testify/assert"
)

func TestErrorMiddleware(t *testing.T) {
	tests := []struct {
		Error    error
		Body     string
		Code     int
		Reported bool
	}{
		{
			Error:    errors.New("boom"),
			Body:     `{"error":"boom"}` + "\n",
			Code:     500,
			Reported: true,
		},
		{
			Error: httpx.NewError(403, errors.New("forbidden")),
			Body:  `{"error":"forbidden"}` + "\n",
			Code:  403,
		},
	}

	for _, tt := range tests {
		var reported int
		h := NewError(httpx.HandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			return tt.Error
		}))
		req := httptest.NewRequest("GET", "/", nil)
		resp := httptest.NewRecorder()
		ctx := reporter.WithReporter(context.Background(), reporter.ReporterFunc(func(context.Context, string, error) error {
			reported++
			return nil
		}))

		err := h.ServeHTTPContext(ctx, resp, req)
		assert.NoError(t, err)
		assert.Equal(t, tt.Body, resp.Body.String())
		assert.Equal(t, tt.Code, resp.Code)
		assert.Equal(t, tt.Reported, reported == 1)
	}
}

func TestErrorWithHandler(t *testing.T) {
	var called bool

	h := HandleError(httpx.HandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return errors.New("boom")
	}), func(ctx context.Context, err error, w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest("GET", "/path", nil)
	resp := httptest.NewRecorder()

	h.ServeHTTPContext(context.Background(), resp, req)

	assert.True(t, called)
}

func TestRecover(t *testing.T) {
	h := NewError(Recover(httpx.HandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		panic("boom")
	})))

	var reported error
	ctx := reporter.WithReporter(context.Background(), reporter.ReporterFunc(func(ctx context.Context, level string, err error) error {
		reported = err
		return nil
	}))
	req := httptest.NewRequest("GET", "/", nil)
	resp := httptest.NewRecorder()

	assert.NotPanics(t, func() { h.ServeHTTPContext(ctx, resp, req) })
	assert.Equal(t, 500, resp.Code)
	assert.EqualError(t, reported, "boom")
}
