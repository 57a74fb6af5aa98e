package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/reporter"
)

// StatusError is an error that carries the HTTP status it should be
// rendered with.
type StatusError struct {
	Status int
	Err    error
}

// NewError wraps err with an HTTP status.
func NewError(status int, err error) *StatusError {
	return &StatusError{Status: status, Err: err}
}

func (e *StatusError) Error() string   { return e.Err.Error() }
func (e *StatusError) Cause() error    { return e.Err }
func (e *StatusError) Unwrap() error   { return e.Err }
func (e *StatusError) StatusCode() int { return e.Status }

// Error reports server errors and renders err as JSON.
func Error(ctx context.Context, err error, rw http.ResponseWriter, r *http.Request) {
	if ErrorStatusCode(err) >= http.StatusInternalServerError {
		reporter.Report(ctx, err)
	}
	EncodeError(err, rw)
}

type temporaryError interface {
	Temporary() bool // Is the error temporary?
}

type timeoutError interface {
	Timeout() bool // Is the error a timeout?
}

type statusCoder interface {
	StatusCode() int
}

// EncodeError writes err as a JSON body of the form {"error":"..."}.
func EncodeError(err error, rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(ErrorStatusCode(err))

	errorResp := map[string]string{
		"error": err.Error(),
	}

	json.NewEncoder(rw).Encode(errorResp)
}

// ErrorStatusCode returns the HTTP status for err. Errors that don't say
// otherwise are 500s.
func ErrorStatusCode(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}

	rootErr := errors.Cause(err)
	if e, ok := rootErr.(temporaryError); ok && e.Temporary() {
		return http.StatusServiceUnavailable
	}

	if e, ok := rootErr.(timeoutError); ok && e.Timeout() {
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}
