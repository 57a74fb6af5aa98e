package client

import (
	"fmt"
	"net/http"
	"net/http/httptrace"

	"github.com/remind101/pagecrypt/metrics"
)

// Transport counts connection events of the wrapped transport as
// client.conn.<event>, tagged with the host.
type Transport struct {
	Transport http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Host
	count := func(key string, tags map[string]string) {
		if tags == nil {
			tags = make(map[string]string, 1)
		}
		tags["host"] = host
		metrics.Count("client.conn."+key, 1, tags, 1.0)
	}

	trace := &httptrace.ClientTrace{
		// GotConn is called after a successful connection is
		// obtained. There is no hook for failure to obtain a
		// connection; instead, use the error from
		// Transport.RoundTrip.
		GotConn: func(info httptrace.GotConnInfo) {
			count("GotConn", map[string]string{
				"reused":   fmt.Sprintf("%t", info.Reused),
				"was_idle": fmt.Sprintf("%t", info.WasIdle),
			})
		},
		PutIdleConn: func(err error) {
			count("PutIdleConn", map[string]string{
				"error": fmt.Sprintf("%t", err != nil),
			})
		},
		ConnectStart: func(network, addr string) {
			count("ConnectStart", nil)
		},
		ConnectDone: func(network, addr string, err error) {
			count("ConnectDone", map[string]string{
				"error": fmt.Sprintf("%t", err != nil),
			})
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			count("DNSDone", map[string]string{
				"error":     fmt.Sprintf("%t", info.Err != nil),
				"coalesced": fmt.Sprintf("%t", info.Coalesced),
			})
		},
	}
	ctx := httptrace.WithClientTrace(req.Context(), trace)

	next := t.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	resp, err := next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		return resp, err
	}
	if resp.Close {
		count("ConnectionClosed", nil)
	}
	return resp, err
}
