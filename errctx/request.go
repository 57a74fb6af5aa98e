package errctx

import (
	"net/http"
	"net/url"
)

// Headers and form fields that carry credentials or key material. They are
// stripped before a request is attached to an error.
var (
	sensitiveHeaders = map[string]bool{
		"Authorization": true,
		"Cookie":        true,
		"X-Session-Key": true,
	}
	sensitiveFormKeys = map[string]bool{
		"password":    true,
		"acode":       true,
		"access_code": true,
		"session_key": true,
	}
)

func safeCloneRequest(req *http.Request) *http.Request {
	if req == nil {
		return nil
	}

	return &http.Request{
		Method:           req.Method,
		URL:              safeCloneURL(req.URL),
		Proto:            req.Proto,
		ProtoMajor:       req.ProtoMajor,
		ProtoMinor:       req.ProtoMinor,
		Header:           filterValues(req.Header, sensitiveHeaders),
		ContentLength:    req.ContentLength,
		TransferEncoding: copyStrings(req.TransferEncoding),
		Close:            req.Close,
		Host:             req.Host,
		Form:             url.Values(filterValues(req.Form, sensitiveFormKeys)),
		PostForm:         url.Values(filterValues(req.PostForm, sensitiveFormKeys)),
		RemoteAddr:       req.RemoteAddr,
		RequestURI:       req.RequestURI,
	}
}

func safeCloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	q := u.Query()
	for k := range sensitiveFormKeys {
		q.Del(k)
	}
	return &url.URL{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: q.Encode(),
		Fragment: u.Fragment,
	}
}

func filterValues(values map[string][]string, drop map[string]bool) map[string][]string {
	if values == nil {
		return nil
	}
	out := make(map[string][]string, len(values))
	for k, v := range values {
		if drop[k] {
			continue
		}
		out[k] = copyStrings(v)
	}
	return out
}

func copyStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
