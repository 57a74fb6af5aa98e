package middleware

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/remind101/pagecrypt/httpx"
	"github.com/remind101/pagecrypt/logger"
)

// LoggerGenerator builds the logger for a request.
type LoggerGenerator func(context.Context, *http.Request) logger.Logger

// StdoutLoggerWithLevel returns a LoggerGenerator that writes to stdout at
// the named level. Unknown levels fall back to info.
func StdoutLoggerWithLevel(lvl string) LoggerGenerator {
	l, err := logger.ParseLevel(lvl)
	if err != nil {
		l = logger.INFO
	}
	return StdLogger(l, os.Stdout)
}

// LogTo is an httpx middleware that wraps the handler to insert a logger and
// log the request to it.
func LogTo(h httpx.Handler, g LoggerGenerator) httpx.Handler {
	return InsertLogger(Log(h), g)
}

// InsertLogger returns an httpx.Handler middleware that will call f to generate
// a logger, then insert it into the context.
func InsertLogger(h httpx.Handler, g LoggerGenerator) httpx.Handler {
	return httpx.HandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		l := g(ctx, r)
		ctx = logger.WithLogger(ctx, l)
		return h.ServeHTTPContext(ctx, w, r)
	})
}

// StdLogger returns a LoggerGenerator writing to out, tagging every line
// with the request id.
func StdLogger(level logger.Level, out io.Writer) LoggerGenerator {
	return func(ctx context.Context, r *http.Request) logger.Logger {
		return logger.New(log.New(out, "", 0), level).With("request_id", httpx.RequestID(ctx))
	}
}

// Logger is middleware that logs the request details to the logger.Logger
// embedded within the context.
type Logger struct {
	// handler is the wrapped httpx.Handler
	handler httpx.Handler

	// now returns the current time.
	now func() time.Time
}

// Log wraps h.
func Log(h httpx.Handler) *Logger {
	return &Logger{
		handler: h,
		now:     time.Now,
	}
}

func (h *Logger) ServeHTTPContext(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	rw := NewResponseWriter(w)

	t := h.now()

	err := h.handler.ServeHTTPContext(ctx, rw, r)

	logger.Info(ctx, "request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rw.Status(),
		"ms", h.now().Sub(t).Milliseconds(),
	)

	return err
}
