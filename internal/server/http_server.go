// Package server constructs and runs the HTTP side of the chat service with
// helpers that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// CreateServer creates and configures an HTTP server with the specified address and handler.
// It sets reasonable timeout values for production use.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ServeWebSocket serves Routes on ln until Shutdown, after which it returns
// ErrServerClosed. Upgraded connections are sessions like any other and are
// stopped by Shutdown itself.
func (s *Server) ServeWebSocket(ln net.Listener) error {
	httpServer := CreateServer(ln.Addr().String(), s.Routes())
	if !s.AddCloser(httpCloser{server: httpServer, timeout: s.cfg.ShutdownTimeout}) {
		_ = ln.Close()
		return ErrServerClosed
	}

	s.log.WithField("addr", ln.Addr().String()).Info("Listening for WebSocket connections")
	err := httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return ErrServerClosed
	}
	return err
}

// httpCloser shuts an HTTP server down gracefully when closed.
type httpCloser struct {
	server  *http.Server
	timeout time.Duration
}

func (c httpCloser) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.server.Shutdown(ctx)
}
