// Package retry runs an operation until it succeeds, a non retryable error is
// returned, or the exponential backoff gives up.
package retry

import (
	"context"
	"reflect"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/remind101/pagecrypt/logger"
	"github.com/remind101/pagecrypt/metrics"
)

type BackOffOpts struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

var DefaultBackOffOpts = &BackOffOpts{
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     1 * time.Second,
	MaxElapsedTime:  5 * time.Second,
}

var RetryOnAnyError = func(error) bool { return true }

type RetryNotifier func(*RetryEvent)

type RetryEvent struct {
	Retrier  *Retrier
	Err      error
	NumTries int
}

type Retrier struct {
	Name string

	backOffOpts               *BackOffOpts
	shouldRetryFunc           func(error) bool
	notifyRetryFuncs          []RetryNotifier
	notifyGaveUpFuncs         []RetryNotifier
	notifyShouldNotRetryFuncs []RetryNotifier
}

// NewRetrier returns a Retrier that reports each retry to the metrics
// reporter under retry.<name>.
func NewRetrier(name string, backOffOpts *BackOffOpts, shouldRetryFunc func(error) bool) *Retrier {
	return &Retrier{
		Name:                      name,
		backOffOpts:               backOffOpts,
		shouldRetryFunc:           shouldRetryFunc,
		notifyRetryFuncs:          []RetryNotifier{countEvent("retry")},
		notifyGaveUpFuncs:         []RetryNotifier{countEvent("gave_up")},
		notifyShouldNotRetryFuncs: []RetryNotifier{countEvent("no_retry")},
	}
}

// NewErrorTypeRetrier retries only errors whose dynamic type matches one of
// errorTypes.
func NewErrorTypeRetrier(name string, backOffOpts *BackOffOpts, errorTypes ...interface{}) *Retrier {
	return NewRetrier(name, backOffOpts, RetryWhenErrorTypeMatches(instancesToTypes(errorTypes)))
}

// Retry calls f until it succeeds or the retrier gives up.
func (r *Retrier) Retry(f func() (interface{}, error)) (interface{}, error) {
	return r.RetryContext(context.Background(), func(context.Context) (interface{}, error) {
		return f()
	})
}

// RetryContext is Retry that also stops waiting when ctx is done. The last
// error from f is returned in that case.
func (r *Retrier) RetryContext(ctx context.Context, f func(context.Context) (interface{}, error)) (interface{}, error) {
	var (
		val  interface{}
		err  error
		next time.Duration
	)

	numTries := 0
	b := r.newBackOff()
	b.Reset()
	for {
		numTries++
		if val, err = f(ctx); err == nil {
			return val, nil
		}

		if !r.shouldRetryFunc(err) {
			r.notify(ctx, r.notifyShouldNotRetryFuncs, err, numTries)
			return val, err
		}

		if next = b.NextBackOff(); next == backoff.Stop {
			r.notify(ctx, r.notifyGaveUpFuncs, err, numTries)
			logger.Warn(ctx, "retry.gave_up", "retrier", r.Name, "tries", numTries, "error", err)
			return val, err
		}

		select {
		case <-ctx.Done():
			r.notify(ctx, r.notifyGaveUpFuncs, err, numTries)
			return val, err
		case <-time.After(next):
		}
		r.notify(ctx, r.notifyRetryFuncs, err, numTries)
		logger.Debug(ctx, "retry.retrying", "retrier", r.Name, "tries", numTries, "error", err)
	}
}

func (r *Retrier) AddNotifyRetry(f RetryNotifier) {
	r.notifyRetryFuncs = append(r.notifyRetryFuncs, f)
}

func (r *Retrier) AddNotifyGaveUp(f RetryNotifier) {
	r.notifyGaveUpFuncs = append(r.notifyGaveUpFuncs, f)
}

func (r *Retrier) SetBackOffOpts(b *BackOffOpts) {
	r.backOffOpts = b
}

func (r *Retrier) notify(ctx context.Context, fns []RetryNotifier, err error, numTries int) {
	e := &RetryEvent{Retrier: r, Err: err, NumTries: numTries}
	for _, fn := range fns {
		fn(e)
	}
}

func (r *Retrier) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.backOffOpts.InitialInterval
	b.MaxInterval = r.backOffOpts.MaxInterval
	b.MaxElapsedTime = r.backOffOpts.MaxElapsedTime
	return b
}

func countEvent(event string) RetryNotifier {
	return func(re *RetryEvent) {
		metrics.Count("retry."+event, 1, map[string]string{"retrier": re.Retrier.Name}, 1.0)
	}
}

func RetryWhenErrorTypeMatches(errorTypes []reflect.Type) func(error) bool {
	errorTypeSet := make(map[reflect.Type]bool)
	for _, t := range errorTypes {
		errorTypeSet[t] = true
	}
	return func(e error) bool {
		return errorTypeSet[reflect.TypeOf(e)]
	}
}

func instancesToTypes(instances []interface{}) []reflect.Type {
	types := make([]reflect.Type, 0, len(instances))
	for _, instance := range instances {
		types = append(types, reflect.TypeOf(instance))
	}
	return types
}
