// Package svc wires the ambient stack of a pagecrypt process: logging, error
// reporting, metrics, tracing and the HTTP middleware stack.
//
// Recommend Usage:
//
//	func main() {
//		env := svc.InitAll(svc.Config{AppName: "pagecrypt"})
//		defer env.Close()
//
//		r := httpx.NewRouter()
//		// ... add routes
//
//		h := svc.NewStandardHandler(svc.HandlerOpts{
//			Router:   r,
//			Reporter: env.Reporter,
//		})
//
//		s := svc.NewServer(h, svc.WithPort("8080"))
//		svc.RunServer(env.Context, s)
//	}
package svc

import (
	"context"
	"net/http"
	"time"

	"github.com/remind101/pagecrypt/httpx"
	"github.com/remind101/pagecrypt/httpx/middleware"
	"github.com/remind101/pagecrypt/logger"
	"github.com/remind101/pagecrypt/reporter"
)

// HandlerOpts configures NewStandardHandler.
type HandlerOpts struct {
	Router   *httpx.Router
	Reporter reporter.Reporter

	// Logger is tagged with each request's id. Defaults to
	// logger.DefaultLogger.
	Logger logger.Logger

	ErrorHandler   middleware.ErrorHandlerFunc
	HandlerTimeout time.Duration

	// Signatures, when set, verifies the HTTP signature of every request.
	Signatures *middleware.SignatureConfig
}

// NewStandardHandler returns an http.Handler with a standard middleware stack.
// The last middleware added is the first middleware to handle the request.
// Order is pretty important as some middleware depends on others having run
// already.
func NewStandardHandler(opts HandlerOpts) http.Handler {
	var h httpx.Handler = opts.Router

	if opts.Signatures != nil {
		h = middleware.VerifySignature(h, *opts.Signatures)
	}

	if opts.HandlerTimeout != 0 {
		// Timeout requests after the given Timeout duration.
		h = middleware.TimeoutHandler(h, opts.HandlerTimeout)
	}

	// Recover from panics. A panic is converted to an error. This should be first,
	// even though it means panics in middleware will not be recovered, because
	// later middleware expects endpoint panics to be returned as an error.
	h = middleware.Recover(h)

	// Handler errors returned by endpoint handler or recovery middleware.
	// Errors will no longer be returned after this middeware.
	h = middleware.HandleError(h, opts.ErrorHandler)

	// Add request tracing and timing. Must go after the HandleError
	// middleware in order to capture the status code written to the
	// response.
	h = middleware.OpentracingTracing(h, opts.Router)
	h = middleware.ReportResponseTime(h, opts.Router)

	// Insert logger into context and log requests at INFO level.
	base := opts.Logger
	if base == nil {
		base = logger.DefaultLogger
	}
	h = middleware.LogTo(h, func(ctx context.Context, r *http.Request) logger.Logger {
		return base.With("request_id", httpx.RequestID(ctx))
	})

	// Add reporter to context and request to reporter context.
	if opts.Reporter != nil {
		h = middleware.WithReporter(h, opts.Reporter)
	}

	// Add the request id to the context.
	h = middleware.ExtractRequestID(h)

	// Wrap the route in middleware to add a context.Context. This middleware must be
	// last as it acts as the adaptor between http.Handler and httpx.Handler.
	return middleware.BackgroundContext(h)
}
