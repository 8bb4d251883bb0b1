// Package pump drives the session engine's periodic HEARTBEAT tick.
package pump

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dnscat2go/dnstunnel/internal/bus"
)

// DefaultInterval is the heartbeat cadence New uses when given a
// non-positive interval (spec.md §9.2's resolved open question: the
// original C source drives its heartbeat from the host program's own
// event loop with no fixed period of its own; 1 second matches the
// teacher's RetransmissionTimeout order of magnitude and equals
// session.RetransmitDelay).
const DefaultInterval = 1 * time.Second

// Pump posts bus.HeartbeatMsg{} on a fixed tick until its context is
// canceled. It owns no session state; it only pokes the engine, the
// same way the host program's main loop calls handle_heartbeat in
// original_source/util/dns/dnscat2/client/session.c.
//
// Pump runs on its own goroutine (spec.md §5), so it posts through a
// bus.Poster rather than calling a *bus.Bus directly: in production
// that's a bus.ChannelPoster drained by the dispatcher goroutine; in
// tests that don't need cross-goroutine safety, a *bus.Bus works too.
type Pump struct {
	Poster   bus.Poster
	Interval time.Duration
	Log      logrus.FieldLogger
}

// New returns a Pump posting through poster, defaulting interval to
// DefaultInterval and log to a discard logger when zero/nil.
func New(poster bus.Poster, interval time.Duration, log logrus.FieldLogger) *Pump {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logrus.New()
	}
	return &Pump{Poster: poster, Interval: interval, Log: log}
}

// Run blocks, posting HEARTBEAT every Interval, until ctx is canceled.
// Grounded on the teacher's writeWorker select loop in
// eenblam-protohackers/7/session.go (ticker channel plus ctx.Done()),
// generalized from a per-session retransmit timer to a single
// process-wide heartbeat source.
func (p *Pump) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	p.Log.WithField("interval", p.Interval).Info("heartbeat pump started")

	for {
		select {
		case <-ctx.Done():
			p.Log.Info("heartbeat pump stopped")
			return
		case <-ticker.C:
			p.Poster.Post(bus.HeartbeatMsg{})
		}
	}
}
