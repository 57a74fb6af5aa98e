// Package httpx provides an extra layer of convenience over package http:
// handlers that take a context and return an error.
package httpx

import (
	"context"
	"net/http"
)

// key used to store context values from within this package.
type key int

const (
	varsKey key = iota
	requestIDKey
)

// Handler is like http.Handler, but takes a context and returns an error
// for middleware to handle.
type Handler interface {
	ServeHTTPContext(context.Context, http.ResponseWriter, *http.Request) error
}

// HandlerFunc is a function signature that implements the Handler interface.
type HandlerFunc func(context.Context, http.ResponseWriter, *http.Request) error

// ServeHTTPContext calls f.
func (f HandlerFunc) ServeHTTPContext(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return f(ctx, w, r)
}

// RequestID extracts the request id from a context.
func RequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey).(string)
	return requestID
}

// WithRequestID inserts a request id into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}
