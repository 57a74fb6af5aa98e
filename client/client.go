// Package client is a Go client for the pagecrypt HTTP API.
//
//	c := client.New("https://pagecrypt.internal", client.As(&api.Actor{ID: 42}))
//	page, err := c.ReadPage(ctx, 7, "")
//
// A Client keeps the cookies the API sets, like a browser would, so a key
// unlocked with SetupKey or a redeemed access code stays in effect for later
// calls.
package client

import (
	"context"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	httpsignatures "github.com/99designs/httpsignatures-go"
	"github.com/remind101/pagecrypt/api"
	"github.com/remind101/pagecrypt/client/request"
	"github.com/remind101/pagecrypt/retry"
)

// Client holds request handlers and an http client and builds requests
// using them.
type Client struct {
	Endpoint   string
	HTTPClient *http.Client
	Handlers   request.Handlers

	// Retrier, when set, repeats retryable failures. See request.Retryable.
	Retrier *retry.Retrier
}

// Timeout specifies a time limit for requests made by this Client.
func Timeout(t time.Duration) func(*Client) {
	return func(c *Client) {
		c.HTTPClient.Timeout = t
	}
}

// RoundTripper sets a custom transport on the underlying http Client.
func RoundTripper(r http.RoundTripper) func(*Client) {
	return func(c *Client) {
		c.HTTPClient.Transport = r
	}
}

// Retry repeats idempotent requests that fail with a connection error or a
// 502, 503 or 504, backing off as opts says.
func Retry(opts *retry.BackOffOpts) func(*Client) {
	return func(c *Client) {
		c.Retrier = retry.NewRetrier("pagecrypt.client", opts, request.Retryable)
	}
}

// As identifies every request as made by a. It stands in for the host that
// normally fronts the API.
func As(a *api.Actor) func(*Client) {
	return func(c *Client) {
		if a.ID != 0 {
			c.Handlers.Build.Append(request.Header(api.HeaderUserID, strconv.FormatInt(a.ID, 10)))
		}
		if a.Name != "" {
			c.Handlers.Build.Append(request.Header(api.HeaderUserName, a.Name))
		}
		if len(a.Groups) > 0 {
			c.Handlers.Build.Append(request.Header(api.HeaderGroups, strings.Join(a.Groups, ",")))
		}
		if len(a.Rights) > 0 {
			c.Handlers.Build.Append(request.Header(api.HeaderRights, strings.Join(a.Rights, ",")))
		}
	}
}

// SignWith signs every request with the HMAC secret of key id, covering the
// date and identity headers. The API verifies it when started with signing
// keys.
func SignWith(id, secret string) func(*Client) {
	return func(c *Client) {
		c.Handlers.Sign.Append(request.Handler{
			Name: "Signer",
			Fn: func(r *request.Request) {
				headers := []string{"date"}
				for _, h := range identityHeaders {
					if r.HTTPRequest.Header.Get(h) != "" {
						headers = append(headers, strings.ToLower(h))
					}
				}
				signer := httpsignatures.NewSigner(httpsignatures.AlgorithmHmacSha256, headers...)
				r.Error = signer.SignRequest(id, secret, r.HTTPRequest)
			},
		})
	}
}

var identityHeaders = []string{api.HeaderUserID, api.HeaderUserName, api.HeaderGroups, api.HeaderRights}

// DefaultTransport dials aggressively and counts connection events.
var DefaultTransport http.RoundTripper = &Transport{
	Transport: &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   1 * time.Second,
			KeepAlive: 90 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 3 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	},
}

// New returns a new client.
func New(endpoint string, options ...func(*Client)) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		Endpoint: strings.TrimSuffix(endpoint, "/"),
		HTTPClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: DefaultTransport,
			Jar:       jar,
		},
		Handlers: request.DefaultHandlers(),
	}

	// Apply options
	for _, option := range options {
		option(c)
	}

	return c
}

// NewRequest returns a request for path, relative to the endpoint. params
// is encoded as the JSON body and the response is decoded into data.
func (c *Client) NewRequest(ctx context.Context, method, path string, params interface{}, data interface{}) *request.Request {
	httpReq, _ := http.NewRequestWithContext(ctx, method, c.Endpoint, nil)
	httpReq.URL, _ = url.Parse(c.Endpoint + path)

	r := request.New(httpReq, c.Handlers, params, data)
	r.HTTPClient = c.HTTPClient
	r.Retrier = c.Retrier
	return r
}
