package retry

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/remind101/pagecrypt/metrics"
)

type throttledError struct{}

func (e *throttledError) Error() string {
	return "throttled"
}

type counter struct {
	sync.Mutex
	count int
}

func (c *counter) Incr() {
	c.Lock()
	defer c.Unlock()
	c.count++
}

func (c *counter) Count() int {
	c.Lock()
	defer c.Unlock()
	return c.count
}

var _ = Describe("Retrier", func() {
	var backOffOpts *BackOffOpts
	var calls *counter

	BeforeEach(func() {
		backOffOpts = &BackOffOpts{
			InitialInterval: 1 * time.Nanosecond,
			MaxInterval:     5 * time.Nanosecond,
			MaxElapsedTime:  250 * time.Microsecond,
		}
		calls = &counter{}
	})

	It("keeps retrying until MaxElapsedTime and calls NotifyGaveUp", func() {
		retrier := NewRetrier("store", backOffOpts, RetryOnAnyError)

		gaveUp := 0
		retrier.AddNotifyGaveUp(func(*RetryEvent) { gaveUp++ })

		_, err := retrier.Retry(func() (interface{}, error) {
			calls.Incr()
			return 0, &throttledError{}
		})

		Expect(err).To(Equal(&throttledError{}))
		Expect(calls.Count()).To(BeNumerically(">", 1))
		Expect(gaveUp).To(Equal(1))
	})

	It("retries until successful, calling NotifyRetry on each retry", func() {
		r, restore := metrics.Install()
		defer restore()

		retrier := NewRetrier("store", backOffOpts, RetryOnAnyError)

		retried := 0
		retrier.AddNotifyRetry(func(*RetryEvent) { retried++ })

		val, err := retrier.Retry(func() (interface{}, error) {
			calls.Incr()
			if calls.Count() < 5 {
				return 0, &throttledError{}
			}
			return 123, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(val.(int)).To(Equal(123))
		Expect(calls.Count()).To(Equal(5))

		// Four retries for a total of five tries.
		Expect(retried).To(Equal(4))
		Expect(r.Total("retry.retry", map[string]string{"retrier": "store"})).To(Equal(int64(4)))
	})

	It("returns the error when there's a non-retryable error", func() {
		retrier := NewRetrier("store", backOffOpts, func(error) bool { return false })
		boom := errors.New("boom")
		_, err := retrier.Retry(func() (interface{}, error) {
			calls.Incr()
			return nil, boom
		})
		Expect(err).To(Equal(boom))
		Expect(calls.Count()).To(Equal(1))
	})

	It("stops when the context is canceled", func() {
		retrier := NewRetrier("store", &BackOffOpts{
			InitialInterval: time.Hour,
			MaxInterval:     time.Hour,
			MaxElapsedTime:  2 * time.Hour,
		}, RetryOnAnyError)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := retrier.RetryContext(ctx, func(context.Context) (interface{}, error) {
			calls.Incr()
			return nil, &throttledError{}
		})
		Expect(err).To(Equal(&throttledError{}))
		Expect(calls.Count()).To(Equal(1))
	})

	It("only retries matching error types", func() {
		retrier := NewErrorTypeRetrier("store", backOffOpts, &throttledError{})
		boom := errors.New("boom")
		_, err := retrier.Retry(func() (interface{}, error) {
			calls.Incr()
			if calls.Count() == 1 {
				return nil, &throttledError{}
			}
			return nil, boom
		})
		Expect(err).To(Equal(boom))
		Expect(calls.Count()).To(Equal(2))
	})
})

var _ = Describe("RetryWhenErrorTypeMatches", func() {
	It("returns true when an error matches an expected type", func() {
		shouldRetry := RetryWhenErrorTypeMatches([]reflect.Type{reflect.TypeOf(&throttledError{})})
		Expect(shouldRetry(&throttledError{})).To(BeTrue())
		Expect(shouldRetry(errors.New("hi"))).To(BeFalse())
	})
})
