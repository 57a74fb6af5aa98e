// Package request runs a client request through lists of handlers: build,
// sign, send, validate, then decode.
package request

import (
	"context"
	"net/http"
	"time"

	"github.com/remind101/pagecrypt/retry"
)

// Request manages the lifecycle of a client request.
type Request struct {
	Time         time.Time
	HTTPClient   *http.Client
	Handlers     Handlers
	HTTPRequest  *http.Request
	HTTPResponse *http.Response
	Params       interface{} // The input value to encode into the request.
	Data         interface{} // The output value to decode the response into.
	Error        error

	// Retrier repeats failed sends it considers retryable. Nil sends once.
	Retrier *retry.Retrier

	built    bool
	attempts int
}

func New(httpReq *http.Request, handlers Handlers, params interface{}, data interface{}) *Request {
	r := &Request{
		HTTPClient:  http.DefaultClient,
		Handlers:    handlers.Copy(),
		Time:        time.Now(),
		HTTPRequest: httpReq,
		Params:      params,
		Data:        data,
	}

	return r
}

// Context returns the context of the underlying http request.
func (r *Request) Context() context.Context {
	return r.HTTPRequest.Context()
}

// Attempts returns how many times the request was sent.
func (r *Request) Attempts() int {
	return r.attempts
}

func (r *Request) Send() error {
	defer func() {
		r.Handlers.Complete.Run(r)
	}()

	r.Build()
	if r.Error != nil {
		return r.Error
	}

	if r.Retrier != nil {
		r.Retrier.RetryContext(r.Context(), func(context.Context) (interface{}, error) {
			return nil, r.attempt()
		})
	} else {
		r.attempt()
	}

	if r.Error != nil {
		if r.HTTPResponse != nil {
			r.Handlers.DecodeError.Run(r)
		}
		return r.Error
	}

	r.Handlers.Decode.Run(r)
	return r.Error
}

// attempt sends the request once and validates the response. The body of a
// previous response is discarded and the request body rewound.
func (r *Request) attempt() error {
	if r.attempts > 0 {
		if r.HTTPResponse != nil && r.HTTPResponse.Body != nil {
			r.HTTPResponse.Body.Close()
		}
		r.HTTPResponse = nil
		if r.HTTPRequest.GetBody != nil {
			body, err := r.HTTPRequest.GetBody()
			if err != nil {
				r.Error = err
				return err
			}
			r.HTTPRequest.Body = body
		}
	}
	r.attempts++
	r.Error = nil

	r.Handlers.Send.Run(r)
	if r.Error != nil {
		return r.Error
	}
	r.Handlers.ValidateResponse.Run(r)
	return r.Error
}

// Build runs build handlers and then runs sign handlers.
func (r *Request) Build() {
	if !r.built {
		r.Handlers.Build.Run(r)
		r.built = true
		if r.Error != nil {
			return
		}
		r.Handlers.Sign.Run(r)
	}
}
