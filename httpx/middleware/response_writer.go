package middleware

import "net/http"

// ResponseWriter is an http.ResponseWriter that remembers the status code it
// was given.
type ResponseWriter interface {
	http.ResponseWriter

	// Status returns the status code of the response, or 0 if nothing
	// has been written yet.
	Status() int
}

// NewResponseWriter wraps rw. Wrapping a ResponseWriter returns it as is.
func NewResponseWriter(rw http.ResponseWriter) ResponseWriter {
	if w, ok := rw.(ResponseWriter); ok {
		return w
	}
	return &responseWriter{ResponseWriter: rw}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(s int) {
	if rw.status == 0 {
		rw.status = s
	}
	rw.ResponseWriter.WriteHeader(s)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Status() int {
	return rw.status
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
