package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/httpx"
	"github.com/remind101/pagecrypt/metrics"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/ext"
)

type Handlers struct {
	Build            HandlerList
	Sign             HandlerList
	Send             HandlerList
	ValidateResponse HandlerList
	DecodeError      HandlerList
	Decode           HandlerList
	Complete         HandlerList
}

func DefaultHandlers() Handlers {
	return Handlers{
		Build:            NewHandlerList(JSONBuilder, RequestIDForwarder),
		Sign:             NewHandlerList(),
		Send:             NewHandlerList(WithTracing(WithMetrics(BaseSender))),
		ValidateResponse: NewHandlerList(ValidateStatus),
		DecodeError:      NewHandlerList(JSONErrorDecoder),
		Decode:           NewHandlerList(JSONDecoder),
		Complete:         NewHandlerList(),
	}
}

func (h Handlers) Copy() Handlers {
	return Handlers{
		Build:            h.Build.copy(),
		Sign:             h.Sign.copy(),
		Send:             h.Send.copy(),
		ValidateResponse: h.ValidateResponse.copy(),
		DecodeError:      h.DecodeError.copy(),
		Decode:           h.Decode.copy(),
		Complete:         h.Complete.copy(),
	}
}

type HandlerList struct {
	list []Handler
}

func NewHandlerList(hh ...Handler) HandlerList {
	return HandlerList{
		list: append([]Handler{}, hh...),
	}
}

func (hl *HandlerList) Run(r *Request) {
	for _, h := range hl.list {
		h.Fn(r)
	}
}

func (hl *HandlerList) Append(h Handler) {
	hl.list = append(hl.list, h)
}

func (hl *HandlerList) Prepend(h Handler) {
	hl.list = append([]Handler{h}, hl.list...)
}

// Len returns the number of handlers in the list.
func (hl *HandlerList) Len() int {
	return len(hl.list)
}

func (hl *HandlerList) copy() HandlerList {
	n := HandlerList{}
	if len(hl.list) == 0 {
		return n
	}

	n.list = append(make([]Handler, 0, len(hl.list)), hl.list...)
	return n
}

type Handler struct {
	Name string
	Fn   func(*Request)
}

// ResponseError is returned for a response outside the 2xx range. Message is
// the "error" field of a JSON error body, when there is one.
type ResponseError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.URL, e.StatusCode)
}

// Retryable reports whether a failed send may be repeated: the method is
// idempotent and the connection failed or the response was a 502, 503 or 504.
// POST is never retried, so an access code is redeemed at most once.
func Retryable(err error) bool {
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return idempotent(respErr.Method)
		}
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		return idempotent(urlErr.Op)
	}
	return false
}

func idempotent(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "HEAD", "PUT", "DELETE", "OPTIONS":
		return true
	}
	return false
}

// BaseSender sends a request using the http.Client.
var BaseSender = Handler{
	Name: "BaseSender",
	Fn: func(r *Request) {
		r.HTTPResponse, r.Error = r.HTTPClient.Do(r.HTTPRequest)
	},
}

var JSONBuilder = Handler{
	Name: "JSONBuilder",
	Fn: func(r *Request) {
		r.HTTPRequest.Header.Set("Accept", "application/json")

		if r.HTTPRequest.Method != "GET" && r.Params != nil {
			raw, err := json.Marshal(r.Params)
			if err != nil {
				r.Error = err
				return
			}
			r.HTTPRequest.Header.Set("Content-Type", "application/json")
			r.HTTPRequest.Body = io.NopCloser(bytes.NewReader(raw))
			r.HTTPRequest.ContentLength = int64(len(raw))
			r.HTTPRequest.GetBody = func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(raw)), nil
			}
		}
	},
}

// RequestIDForwarder passes the request id of the calling request, if any,
// upstream in the X-Request-Id header.
var RequestIDForwarder = Handler{
	Name: "RequestIDForwarder",
	Fn: func(r *Request) {
		if id := httpx.RequestID(r.Context()); id != "" {
			r.HTTPRequest.Header.Set("X-Request-Id", id)
		}
	},
}

// ValidateStatus fails responses outside the 2xx range.
var ValidateStatus = Handler{
	Name: "ValidateStatus",
	Fn: func(r *Request) {
		if code := r.HTTPResponse.StatusCode; code < 200 || code > 299 {
			r.Error = &ResponseError{
				Method:     r.HTTPRequest.Method,
				URL:        r.HTTPRequest.URL.String(),
				StatusCode: code,
			}
		}
	},
}

// JSONErrorDecoder reads the message of a {"error": "..."} body into the
// ResponseError.
var JSONErrorDecoder = Handler{
	Name: "JSONErrorDecoder",
	Fn: func(r *Request) {
		if r.HTTPResponse == nil || r.HTTPResponse.Body == nil {
			return
		}
		defer r.HTTPResponse.Body.Close()

		respErr, ok := r.Error.(*ResponseError)
		if !ok {
			return
		}
		var body struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(r.HTTPResponse.Body).Decode(&body); err == nil {
			respErr.Message = body.Error
		}
	},
}

// JSONDecoder decodes a response as JSON.
var JSONDecoder = Handler{
	Name: "JSONDecoder",
	Fn: func(r *Request) {
		if r.HTTPResponse == nil {
			return
		}
		if r.HTTPResponse.Body == nil {
			return
		}
		defer r.HTTPResponse.Body.Close()
		if r.Data == nil || r.HTTPResponse.StatusCode == http.StatusNoContent {
			_, r.Error = io.Copy(io.Discard, r.HTTPResponse.Body)
			return
		}
		r.Error = json.NewDecoder(r.HTTPResponse.Body).Decode(r.Data)
	},
}

// Header sets a header on every request.
func Header(key, value string) Handler {
	return Handler{
		Name: "Header",
		Fn: func(r *Request) {
			r.HTTPRequest.Header.Set(key, value)
		},
	}
}

// WithTracing returns a Send Handler that wraps another Send Handler in a trace
// span.
func WithTracing(h Handler) Handler {
	return Handler{
		Name: "TracedSender",
		Fn: func(r *Request) {
			span, ctx := opentracing.StartSpanFromContext(r.Context(), "client.request")
			defer span.Finish()
			r.HTTPRequest = r.HTTPRequest.WithContext(ctx)

			span.SetTag(ext.SpanType, ext.SpanTypeHTTP)
			span.SetTag(ext.HTTPMethod, r.HTTPRequest.Method)
			span.SetTag(ext.HTTPURL, r.HTTPRequest.URL.Path)

			h.Fn(r)

			if r.HTTPResponse != nil {
				span.SetTag(ext.HTTPCode, strconv.Itoa(r.HTTPResponse.StatusCode))
			}

			if r.Error != nil {
				span.SetTag(ext.Error, r.Error)
			}
		},
	}
}

// WithMetrics returns a Send Handler that times another Send Handler as
// client.request, tagged with the method and status.
func WithMetrics(h Handler) Handler {
	return Handler{
		Name: "TimedSender",
		Fn: func(r *Request) {
			t := metrics.Time("client.request", map[string]string{
				"method": r.HTTPRequest.Method,
			}, 1.0)
			defer t.Done()

			h.Fn(r)

			status := "error"
			if r.HTTPResponse != nil {
				status = strconv.Itoa(r.HTTPResponse.StatusCode)
			}
			t.SetTags(map[string]string{"status": status})
		},
	}
}
