package middleware

import (
	"context"
	"fmt"
	"net/http"

	opentracing "github.com/opentracing/opentracing-go"
	otext "github.com/opentracing/opentracing-go/ext"
	"github.com/remind101/pagecrypt/httpx"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/ext"
)

// OpentracingTracer starts a server span for every request, continuing a
// trace propagated in the request headers.
type OpentracingTracer struct {
	handler httpx.Handler
	router  *httpx.Router
}

// OpentracingTracing wraps h. Spans are named after router's route templates.
func OpentracingTracing(h httpx.Handler, router *httpx.Router) *OpentracingTracer {
	return &OpentracingTracer{h, router}
}

func (h *OpentracingTracer) ServeHTTPContext(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	route := fmt.Sprintf("%s %s", r.Method, h.router.PathTemplate(r))

	var span opentracing.Span
	wireContext, err := opentracing.GlobalTracer().Extract(
		opentracing.HTTPHeaders,
		opentracing.HTTPHeadersCarrier(r.Header))
	if err != nil {
		span = opentracing.StartSpan("server.request")
	} else {
		span = opentracing.StartSpan("server.request", otext.RPCServerOption(wireContext))
	}
	span.SetTag(ext.ResourceName, route)
	span.SetTag(ext.SpanType, ext.SpanTypeWeb)
	span.SetTag(ext.HTTPMethod, r.Method)
	span.SetTag(ext.HTTPURL, r.URL.Path)

	if rid := httpx.RequestID(ctx); rid != "" {
		span.SetTag("request_id", rid)
	}

	defer span.Finish()
	ctx = opentracing.ContextWithSpan(ctx, span)
	r = r.WithContext(ctx)

	rw := NewResponseWriter(w)
	reqErr := h.handler.ServeHTTPContext(ctx, rw, r)
	if reqErr != nil {
		span.SetTag(ext.Error, reqErr)
	}
	span.SetTag(ext.HTTPCode, rw.Status())

	return reqErr
}
