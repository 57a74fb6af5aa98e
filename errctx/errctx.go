// Package errctx attaches a stack trace, request information and freeform
// context to errors so they can be shipped to an error reporter.
//
//	ctx = errctx.WithRequest(ctx, req)
//	ctx = errctx.WithInfo(ctx, "page_id", 42)
//	e := errctx.New(ctx, err, 0)
//	e.ContextData()["page_id"] // 42
//	e.StackTrace()             // errors.StackTrace
package errctx

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// MaxFrames is the maximum number of frames kept from a stack trace.
var MaxFrames = 1024

// WithInfo adds contextual information to the info object in the context.
func WithInfo(ctx context.Context, key string, value interface{}) context.Context {
	ctx = withInfo(ctx)
	i, _ := infoFromContext(ctx)
	i.set(key, value)
	return ctx
}

// WithRequest stores a sanitized copy of req in the context.
func WithRequest(ctx context.Context, req *http.Request) context.Context {
	ctx = withInfo(ctx)
	i, _ := infoFromContext(ctx)
	i.setRequest(safeCloneRequest(req))
	return ctx
}

// Recover wraps the return value of recover() so the stack points at the
// panic site.
func Recover(ctx context.Context, v interface{}) error {
	switch err := v.(type) {
	case nil:
		return nil
	case *Error:
		return err
	case error:
		return New(ctx, err, 0)
	default:
		return New(ctx, fmt.Errorf("%v", err), 0)
	}
}

// Error wraps an error with a stack trace, contextual information and the
// http request that produced it, if any.
type Error struct {
	// The error that was generated.
	Err error

	info       map[string]interface{}
	request    *http.Request
	stackTrace errors.StackTrace
}

// New wraps err as an Error, skipping skip frames above the caller when a
// stack trace has to be generated. An *Error is returned unchanged.
func New(ctx context.Context, err error, skip int) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	e := &Error{
		Err:        err,
		info:       map[string]interface{}{},
		stackTrace: stacktrace(err, skip+1),
	}
	if i, ok := infoFromContext(ctx); ok {
		e.info, e.request = i.snapshot()
	}
	return e
}

func (e *Error) Error() string {
	return e.Err.Error()
}

// Cause implements the causer interface.
func (e *Error) Cause() error {
	return errors.Cause(e.Err)
}

// Unwrap allows errors.Is to see through the wrapper.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) StackTrace() errors.StackTrace {
	return e.stackTrace
}

func (e *Error) ContextData() map[string]interface{} {
	return e.info
}

func (e *Error) Request() *http.Request {
	return e.request
}

type causer interface {
	Cause() error
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// genStacktrace builds a new trace for err. When the trace passes through a
// panic, frames above the panic are dropped.
func genStacktrace(err error, skip int) errors.StackTrace {
	stack := errors.WithStack(err).(stackTracer).StackTrace()
	skip++

	for index, frame := range stack {
		if fmt.Sprintf("%s", frame) == "panic.go" {
			skip = index + 1
			break
		}
	}

	if skip > len(stack) {
		skip = len(stack)
	}
	return stack[skip:]
}

// getStacktrace walks the causer chain and returns the innermost trace found.
func getStacktrace(err error) errors.StackTrace {
	var stack errors.StackTrace
	for err != nil {
		if st, ok := err.(stackTracer); ok && st.StackTrace() != nil {
			stack = st.StackTrace()
		}
		c, ok := err.(causer)
		if !ok {
			break
		}
		err = c.Cause()
	}
	return stack
}

func stacktrace(err error, skip int) errors.StackTrace {
	stack := getStacktrace(err)
	if stack == nil {
		stack = genStacktrace(err, skip+1)
	}
	if len(stack) > MaxFrames {
		stack = stack[:MaxFrames]
	}
	return stack
}
