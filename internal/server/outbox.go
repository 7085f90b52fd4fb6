// Package server implements the per-session outbox: a bounded queue that any
// session may enqueue into and that only the owning session drains to its
// connection.
package server

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Outbox is a session's output channel. Enqueue never blocks, so a slow or
// gone peer cannot stall whoever is broadcasting.
type Outbox struct {
	lines    chan string
	done     chan struct{}
	finished chan struct{}
	once     sync.Once
	kicked   atomic.Bool
}

// NewOutbox creates an outbox buffering up to size lines.
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = 1
	}
	return &Outbox{
		lines:    make(chan string, size),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Enqueue queues line for delivery. It returns false when the outbox is
// closed or full; the line is dropped in both cases.
func (o *Outbox) Enqueue(line string) bool {
	select {
	case <-o.done:
		return false
	default:
	}

	select {
	case o.lines <- line:
		return true
	default:
		return false
	}
}

// Close stops accepting lines. The pump still flushes what is queued.
func (o *Outbox) Close() {
	o.once.Do(func() {
		close(o.done)
	})
}

// Finished is closed once the pump has returned.
func (o *Outbox) Finished() <-chan struct{} {
	return o.finished
}

// Kicked reports whether the pump delivered the kick signal.
func (o *Outbox) Kicked() bool {
	return o.kicked.Load()
}

// pump writes queued lines to conn until the outbox is closed, a write
// fails, or the kick signal goes out. It closes conn on the way out so that
// the session's blocked read returns and the session tears itself down.
func (o *Outbox) pump(conn LineConn, log logrus.FieldLogger) error {
	defer close(o.finished)
	defer func() {
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.WithError(err).Debug("Error closing connection in pump")
		}
	}()

	for {
		select {
		case line := <-o.lines:
			if err := o.write(conn, line); err != nil {
				return err
			}
		case <-o.done:
			return o.drain(conn)
		}
	}
}

// write sends one line and recognises the kick signal, after which nothing
// else may reach the peer.
func (o *Outbox) write(conn LineConn, line string) error {
	if err := conn.WriteLine(line); err != nil {
		return err
	}
	if line == KickSignal {
		o.kicked.Store(true)
		o.Close()
		return ErrKicked
	}
	return nil
}

// drain writes whatever was queued before Close.
func (o *Outbox) drain(conn LineConn) error {
	n := len(o.lines)
	for i := 0; i < n; i++ {
		if err := o.write(conn, <-o.lines); err != nil {
			return err
		}
	}
	return nil
}
