// Package mock provides a Reporter that records every call.
package mock

import (
	"context"
	"sync"
)

type Reporter struct {
	mu    sync.Mutex
	Calls []Params
}

type Params struct {
	Ctx   context.Context
	Level string
	Err   error
}

func NewReporter() *Reporter {
	return &Reporter{
		Calls: make([]Params, 0),
	}
}

func (r *Reporter) ReportWithLevel(ctx context.Context, level string, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, Params{ctx, level, err})
	return nil
}

// Errors returns the reported errors in order.
func (r *Reporter) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := make([]error, 0, len(r.Calls))
	for _, c := range r.Calls {
		errs = append(errs, c.Err)
	}
	return errs
}

func (r *Reporter) Flush() {}
