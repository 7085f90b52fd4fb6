// Package server computes message fan-out: server announcements, filtered
// chat broadcasts and private messages.
package server

import (
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/linechat/internal/registry"
)

// UnicastResult is the outcome of a private message.
type UnicastResult int

const (
	Delivered UnicastResult = iota
	NotFound
	Blocked
)

func (r UnicastResult) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case NotFound:
		return "not found"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Router fans messages out over a registry. Every call works from one
// snapshot of the registry taken when it starts.
type Router struct {
	registry *registry.Registry
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewRouter creates a Router over reg.
func NewRouter(reg *registry.Registry, log logrus.FieldLogger) *Router {
	return &Router{
		registry: reg,
		log:      log,
		now:      time.Now,
	}
}

// BroadcastServer sends "[Server] content" to every registered session
// except the one named except, which caused the announcement and gets its
// own feedback instead. Block lists do not apply. It returns how many
// sessions accepted the line.
func (r *Router) BroadcastServer(content, except string) int {
	line := serverLine(content)
	targets := lo.Filter(r.registry.Snapshot(), func(m registry.Member, _ int) bool {
		return m.Name != except
	})

	r.log.WithField("recipients", len(targets)).Info(content)
	return r.deliverAll(targets, func(registry.Member) string { return line })
}

// BroadcastChat sends content from sender to every session that has not
// blocked sender. The sender gets the "(You)" variant.
func (r *Router) BroadcastChat(sender, content string) int {
	at := r.now()
	targets := lo.Reject(r.registry.Snapshot(), func(m registry.Member, _ int) bool {
		return m.Blocks(sender)
	})

	r.log.WithFields(logrus.Fields{
		"sender":     sender,
		"recipients": len(targets),
	}).Debug("Broadcasting chat message")

	return r.deliverAll(targets, func(m registry.Member) string {
		return chatLine(at, sender, content, m.Name == sender)
	})
}

// Unicast delivers a private message from sender to receiver and confirms
// it to sender.
func (r *Router) Unicast(sender, receiver, content string) UnicastResult {
	sink, ok := r.registry.Lookup(receiver)
	if !ok {
		return NotFound
	}
	if r.registry.IsBlocked(receiver, sender) {
		return Blocked
	}

	r.deliver(receiver, sink, privateLine(r.now(), sender, content))
	if own, ok := r.registry.Lookup(sender); ok {
		r.deliver(sender, own, " You've sent a private message to "+receiver+".")
	}
	return Delivered
}

func (r *Router) deliverAll(targets []registry.Member, render func(registry.Member) string) int {
	delivered := 0
	for _, m := range targets {
		if r.deliver(m.Name, m.Sink, render(m)) {
			delivered++
		}
	}
	return delivered
}

func (r *Router) deliver(name string, sink registry.Sink, line string) bool {
	if sink.Enqueue(line) {
		return true
	}
	r.log.WithField("recipient", name).Warn("Dropped line for slow or closed session")
	return false
}
