// Package server accepts connections, runs one session per connection and
// coordinates shutdown of listeners and live sessions.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/linechat/internal/registry"
)

// Server owns the shared chat state and every live session.
type Server struct {
	cfg      Config
	realm    Realm
	registry *registry.Registry
	router   *Router
	log      logrus.FieldLogger

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closers  []io.Closer
	closed   bool
	wg       sync.WaitGroup

	requested   chan struct{}
	requestOnce sync.Once
	requestedBy string
}

// New creates a Server with an empty registry.
func New(cfg Config, realm Realm, log logrus.FieldLogger) *Server {
	reg := registry.New()
	return &Server{
		cfg:       cfg.Sanitize(),
		realm:     realm,
		registry:  reg,
		router:    NewRouter(reg, log.WithField("component", "router")),
		log:       log,
		sessions:  make(map[*Session]struct{}),
		requested: make(chan struct{}),
	}
}

// Registry exposes the live registry, mainly for reporting and tests.
func (s *Server) Registry() *registry.Registry { return s.registry }

// Realm returns the process-wide values handed to sessions.
func (s *Server) Realm() Realm { return s.realm }

// Listen binds the configured TCP address. A bind failure is fatal to startup.
func (s *Server) Listen() (net.Listener, error) {
	return net.Listen("tcp", s.cfg.ListenAddr())
}

// Serve accepts connections on ln until Shutdown. It always returns a
// non-nil error; after Shutdown that error is ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	if !s.track(ln) {
		_ = ln.Close()
		return ErrServerClosed
	}
	s.log.WithField("addr", ln.Addr().String()).Info("Listening for chat connections")

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.log.WithError(err).Warnf("Accept error; retrying in %v", backoff)
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0

		lineConn := NewStreamConn(conn, s.cfg.MaxLineLength, s.cfg.WriteTimeout)
		go s.ServeConn(lineConn)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

// ServeConn runs a session on conn and returns when it has closed. Every
// transport funnels its connections through here.
func (s *Server) ServeConn(conn LineConn) {
	session := NewSession(conn, SessionDeps{
		Realm:      s.realm,
		Registry:   s.registry,
		Router:     s.router,
		Controller: s,
		Log:        s.log,
		OutboxSize: s.cfg.OutboxSize,
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.sessions[session] = struct{}{}
	s.wg.Add(1)
	count := len(s.sessions)
	s.mu.Unlock()
	s.log.WithField("connections", count).Debug("Session started")

	defer func() {
		s.mu.Lock()
		delete(s.sessions, session)
		s.mu.Unlock()
		s.wg.Done()
	}()

	session.Run()
}

// AddCloser registers a listener or server that Shutdown must close.
func (s *Server) AddCloser(c io.Closer) bool {
	return s.track(c)
}

func (s *Server) track(c io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closers = append(s.closers, c)
	return true
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// RequestShutdown is called by an administrator's session. The owner of the
// process observes it through ShutdownRequested and calls Shutdown.
func (s *Server) RequestShutdown(requestedBy string) {
	s.requestOnce.Do(func() {
		s.requestedBy = requestedBy
		s.log.WithField("by", requestedBy).Info("Shutdown requested")
		close(s.requested)
	})
}

// ShutdownRequested is closed once an administrator asked for shutdown.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.requested
}

// Shutdown stops accepting connections, asks every session to end and waits
// for them up to timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("Initiating server shutdown...")

	s.mu.Lock()
	s.closed = true
	closers := s.closers
	s.closers = nil
	sessions := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, c := range closers {
		if err := c.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.WithError(err).Warn("Error closing listener")
		}
	}
	for _, session := range sessions {
		session.Stop()
	}
	s.log.WithField("sessions", len(sessions)).Info("Stopping active sessions")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Server shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		s.log.Warn("Server shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
