// Package reporter provides a context.Context aware abstraction for shipping
// errors and panics to third parties.
package reporter

import (
	"context"
	"strings"

	"github.com/remind101/pagecrypt/errctx"
)

// DefaultLevel is the level Report uses.
const DefaultLevel = "error"

// Reporter represents an error handler.
type Reporter interface {
	// ReportWithLevel reports the error to an external system. The error
	// is usually an *errctx.Error carrying a stack trace and contextual
	// information.
	ReportWithLevel(ctx context.Context, level string, err error) error
}

// flusher is implemented by reporters that buffer. Flush blocks until every
// error has been sent.
type flusher interface {
	Flush()
}

// ReporterFunc is a function signature that conforms to the Reporter interface.
type ReporterFunc func(context.Context, string, error) error

func (f ReporterFunc) ReportWithLevel(ctx context.Context, level string, err error) error {
	return f(ctx, level, err)
}

// FromContext extracts a Reporter from a context.Context.
func FromContext(ctx context.Context) (Reporter, bool) {
	h, ok := ctx.Value(reporterKey).(Reporter)
	return h, ok
}

// WithReporter inserts a Reporter into the context.Context.
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey, r)
}

// MultiError is returned when more than one reporter fails.
type MultiError struct {
	Errors []error
}

func (e *MultiError) Error() string {
	m := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		m = append(m, err.Error())
	}
	return strings.Join(m, ", ")
}

// ReportWithLevel wraps err as an *errctx.Error and reports it to the
// Reporter embedded in ctx. Without one, the error is logged.
func ReportWithLevel(ctx context.Context, level string, err error) error {
	return reportWithLevel(ctx, level, errctx.New(ctx, err, 1))
}

// Report is ReportWithLevel at DefaultLevel.
func Report(ctx context.Context, err error) error {
	return reportWithLevel(ctx, DefaultLevel, errctx.New(ctx, err, 1))
}

// Flush the Reporter embedded within the context.Context
func Flush(ctx context.Context) {
	if r, ok := FromContext(ctx); ok {
		if f, ok := r.(flusher); ok {
			f.Flush()
		}
	}
}

func reportWithLevel(ctx context.Context, level string, err error) error {
	r, ok := FromContext(ctx)
	if !ok {
		r = NewLogReporter()
	}
	return r.ReportWithLevel(ctx, level, err)
}

// Monitor reports a panic and then panics again with the wrapped error.
// Useful in goroutines:
//
//	go func(ctx context.Context) {
//		defer reporter.Monitor(ctx)
//		...
//	}(ctx)
func Monitor(ctx context.Context) {
	if err := errctx.Recover(ctx, recover()); err != nil {
		Report(ctx, err)
		Flush(ctx)
		panic(err)
	}
}

type key int

const (
	reporterKey key = iota
)
