package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/remind101/pagecrypt/httpx"
	"github.com/remind101/pagecrypt/metrics"
)

// ResponseTimeReporter reports an http.request timer per request, tagged with
// the route template and status.
type ResponseTimeReporter struct {
	handler httpx.Handler
	router  *httpx.Router
}

// ReportResponseTime wraps h. Routes are named after router's templates.
func ReportResponseTime(h httpx.Handler, router *httpx.Router) *ResponseTimeReporter {
	return &ResponseTimeReporter{handler: h, router: router}
}

func (h *ResponseTimeReporter) ServeHTTPContext(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	t := metrics.Time("http.request", nil, 1.0)
	defer t.Done()

	rw := NewResponseWriter(w)
	err := h.handler.ServeHTTPContext(ctx, rw, r)

	status := rw.Status()
	if err != nil {
		status = httpx.ErrorStatusCode(err)
	}
	t.SetTags(map[string]string{
		"route":  fmt.Sprintf("%s %s", r.Method, h.router.PathTemplate(r)),
		"status": strconv.Itoa(status),
	})
	return err
}
