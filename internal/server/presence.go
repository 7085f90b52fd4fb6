// Package server logs a periodic presence report of who is in the room.
package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/linechat/internal/registry"
)

// PresenceReporter logs the member count and names on a cron schedule.
type PresenceReporter struct {
	cron     *cron.Cron
	registry *registry.Registry
	log      logrus.FieldLogger
}

// NewPresenceReporter parses schedule, which accepts standard five-field
// specs and descriptors such as "@every 1m".
func NewPresenceReporter(schedule string, reg *registry.Registry, log logrus.FieldLogger) (*PresenceReporter, error) {
	p := &PresenceReporter{
		cron:     cron.New(),
		registry: reg,
		log:      log,
	}
	if _, err := p.cron.AddFunc(schedule, p.report); err != nil {
		return nil, fmt.Errorf("parse presence schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Run reports until ctx is cancelled, then waits for a report in progress.
func (p *PresenceReporter) Run(ctx context.Context) {
	p.cron.Start()
	<-ctx.Done()
	<-p.cron.Stop().Done()
}

func (p *PresenceReporter) report() {
	names := p.registry.Names()
	p.log.WithFields(logrus.Fields{
		"count":   len(names),
		"members": strings.Join(names, ","),
	}).Info("Presence report")
}
