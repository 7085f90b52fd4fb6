// Package server drives a single connection through username negotiation,
// the chat loop and teardown.
package server

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/linechat/internal/registry"
)

// Phase is the lifecycle state of a session.
type Phase int32

const (
	PhaseConnecting Phase = iota
	PhaseNegotiatingName
	PhaseActive
	PhaseTerminating
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseNegotiatingName:
		return "negotiating-name"
	case PhaseActive:
		return "active"
	case PhaseTerminating:
		return "terminating"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Controller receives requests that reach beyond one session.
type Controller interface {
	RequestShutdown(requestedBy string)
}

// drainTimeout bounds how long teardown waits for queued lines to flush.
const drainTimeout = 2 * time.Second

// Session is the handler of one connection. It is the only writer of its own
// registry entry and the only reader of its outbox.
type Session struct {
	id       string
	conn     LineConn
	out      *Outbox
	realm    Realm
	registry *registry.Registry
	router   *Router
	control  Controller
	log      logrus.FieldLogger

	name     string
	joinedAt time.Time
	finished bool
	phase    atomic.Int32
}

// SessionDeps are the shared collaborators of every session.
type SessionDeps struct {
	Realm      Realm
	Registry   *registry.Registry
	Router     *Router
	Controller Controller
	Log        logrus.FieldLogger
	OutboxSize int
}

// NewSession binds conn to the shared state in deps.
func NewSession(conn LineConn, deps SessionDeps) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		conn:     conn,
		out:      NewOutbox(deps.OutboxSize),
		realm:    deps.Realm,
		registry: deps.Registry,
		router:   deps.Router,
		control:  deps.Controller,
		log: deps.Log.WithFields(logrus.Fields{
			"session":   id,
			"remote":    conn.RemoteAddr(),
			"transport": conn.Transport(),
		}),
	}
}

// ID returns the identifier assigned at accept time.
func (s *Session) ID() string { return s.id }

// Name returns the accepted username, or "" before negotiation succeeds.
// It is only meaningful from the session's own goroutine or after Run returns.
func (s *Session) Name() string { return s.name }

// Phase returns the current lifecycle state.
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

func (s *Session) setPhase(p Phase) {
	s.phase.Store(int32(p))
	s.log.WithField("phase", p).Debug("Session phase changed")
}

// Run drives the session until it ends. Every exit path goes through
// terminate exactly once.
func (s *Session) Run() {
	s.setPhase(PhaseConnecting)
	s.log.Info("Connection detected")

	log := s.log
	go func() {
		if err := s.out.pump(s.conn, log); err != nil && !errors.Is(err, ErrKicked) && !isExpectedCloseError(err) {
			log.WithError(err).Warn("Error writing to connection")
		}
	}()
	defer s.terminate()

	s.setPhase(PhaseNegotiatingName)
	if !s.negotiateName() {
		return
	}

	s.setPhase(PhaseActive)
	s.serve()
}

// Stop asks the session to end. Queued lines are flushed first, then the
// connection closes and the read loop observes the failure.
func (s *Session) Stop() {
	s.out.Close()
}

func (s *Session) send(line string) {
	if !s.out.Enqueue(line) {
		s.log.Debug("Dropped line for own session")
	}
}

func (s *Session) negotiateName() bool {
	for {
		s.send(UsernamePrompt)
		line, err := s.conn.ReadLine()
		if err != nil {
			s.logReadError(err)
			return false
		}

		switch {
		case line == "":
			s.send(noticeNameEmpty)
		case !s.registry.Register(line, s.out):
			s.send(noticeNameTaken)
		default:
			s.name = line
			s.joinedAt = time.Now()
			s.log = s.log.WithField("name", line)
			s.send(UsernameAccepted + noticeTypeMessages)
			s.router.BroadcastServer(line+" has entered the chat room!", line)
			return true
		}
	}
}

func (s *Session) serve() {
	for !s.finished {
		line, err := s.conn.ReadLine()
		if err != nil {
			s.logReadError(err)
			return
		}
		if s.out.Kicked() {
			return
		}

		switch {
		case line == "":
			s.send(noticeEmptyMessage)
		case strings.HasPrefix(line, CommandSigil):
			s.dispatch(line)
		default:
			s.router.BroadcastChat(s.name, line)
		}
	}
}

// logReadError classifies why the read loop stopped.
func (s *Session) logReadError(err error) {
	switch {
	case s.out.Kicked():
		s.log.Info("Session kicked out")
	case errors.Is(err, ErrLineTooLong):
		s.log.WithError(err).Warn("Peer sent an oversized line")
	case isExpectedCloseError(err):
		s.log.WithError(err).Debug("Connection closed")
	default:
		s.log.WithError(err).Warn("Read error")
	}
}

// terminate is the single teardown path: deregister, announce, flush and
// release the connection.
func (s *Session) terminate() {
	s.setPhase(PhaseTerminating)

	if s.name != "" {
		s.registry.Deregister(s.name, s.out)
		s.router.BroadcastServer(s.name+" has left the chat room.", s.name)
	}

	s.out.Close()
	select {
	case <-s.out.Finished():
	case <-time.After(drainTimeout):
		s.log.Warn("Timed out flushing queued lines")
	}
	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.WithError(err).Debug("Error closing connection")
	}

	s.setPhase(PhaseClosed)
}
