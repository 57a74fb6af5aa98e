package svc

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/remind101/pagecrypt/logger"
)

// NewServerOpt allows users to customize the http.Server used by RunServer.
type NewServerOpt func(*http.Server)

// ServerDefaults specifies default server options to use for RunServer.
var ServerDefaults = func(srv *http.Server) {
	srv.Addr = ":8080"
	srv.WriteTimeout = 5 * time.Second
	srv.ReadHeaderTimeout = 5 * time.Second
	srv.IdleTimeout = 120 * time.Second
}

// WithPort sets the port for the server to run on.
func WithPort(port string) NewServerOpt {
	return func(srv *http.Server) {
		srv.Addr = ":" + port
	}
}

// WithWriteTimeout bounds the time to write a response. Argon2 key
// derivation makes key setup slower than a typical request.
func WithWriteTimeout(d time.Duration) NewServerOpt {
	return func(srv *http.Server) {
		srv.WriteTimeout = d
	}
}

// NewServer offers some convenience and good defaults for creating an http.Server
func NewServer(h http.Handler, opts ...NewServerOpt) *http.Server {
	srv := &http.Server{Handler: h}

	// Prepend defaults to server options.
	opts = append([]NewServerOpt{ServerDefaults}, opts...)
	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// RunServer starts srv and blocks until SIGINT or SIGTERM, then shuts it down
// gracefully and runs onShutdown.
func RunServer(ctx context.Context, srv *http.Server, onShutdown ...func()) error {
	idleConnsClosed := make(chan struct{})

	go func() {
		// Handle SIGINT and SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		sig := <-sigCh
		logger.Info(ctx, "server.stopping", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// We received an interrupt signal, shut down.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			// Error from closing listeners, or context timeout:
			logger.Error(ctx, "server.shutdown_failed", "error", err)
		}
		for _, fn := range onShutdown {
			fn()
		}
		close(idleConnsClosed)
	}()

	logger.Info(ctx, "server.listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		// Error starting or closing listener:
		return err
	}

	<-idleConnsClosed
	return nil
}
