// Package transport defines the wire carrier boundary and a loopback
// reference implementation for local testing and demos.
package transport

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/dnscat2go/dnstunnel/internal/bus"
)

// Driver moves PACKET_OUT bytes to a carrier and delivers carrier
// bytes back as PACKET_IN. A real dnscat2-wire DNS client is out of
// scope for this module (spec.md §1); Driver is the seam a real one
// would be wired in through.
//
// A Driver's PacketOutHandler is meant to be subscribed to bus.PacketOut
// by the dispatcher goroutine at startup; it must not block, matching
// every other bus.Handler. Run owns the driver's own goroutine(s) and
// must post inbound bytes through a bus.Poster rather than touching a
// *bus.Bus directly (spec.md §5: Bus is single-goroutine only).
type Driver interface {
	PacketOutHandler() bus.Handler
	Run(ctx context.Context)
}

// LoopbackDriver treats every PACKET_OUT as an immediately-delivered
// PACKET_IN (spec.md §9.2's resolved open question). It's useful for
// exercising the full bus wiring in integration tests and local demos
// without a real DNS resolver; it is explicitly not a
// protocol-compatible transport.
//
// Outbound bytes cross from the dispatcher goroutine (PacketOutHandler,
// called synchronously from inside Bus.Post) to the driver's own
// goroutine (Run) over an internal channel, then back onto the bus via
// Poster — the same channel-handoff shape the teacher uses between
// Session.Write and Session.writeWorker in
// eenblam-protohackers/7/session.go, generalized from a buffer handoff
// to a message handoff.
type LoopbackDriver struct {
	Poster bus.Poster
	Log    logrus.FieldLogger

	pending chan []byte
}

// NewLoopback returns a LoopbackDriver that posts delivered bytes
// through poster.
func NewLoopback(poster bus.Poster, log logrus.FieldLogger) *LoopbackDriver {
	if log == nil {
		log = logrus.New()
	}
	return &LoopbackDriver{
		Poster:  poster,
		Log:     log,
		pending: make(chan []byte, 64),
	}
}

// PacketOutHandler returns the bus.Handler to subscribe to
// bus.PacketOut. It copies the payload and hands it to Run's goroutine
// without blocking the dispatcher; a full buffer drops the packet,
// matching the lossy-carrier assumption the whole retransmit design is
// built on.
func (d *LoopbackDriver) PacketOutHandler() bus.Handler {
	return func(m bus.Message) {
		out := m.(bus.PacketOutMsg)
		cp := make([]byte, len(out.Data))
		copy(cp, out.Data)
		select {
		case d.pending <- cp:
		default:
			d.Log.Warn("loopback: dropping PACKET_OUT, driver backlog full")
		}
	}
}

// Run delivers queued bytes back as PACKET_IN until ctx is canceled.
func (d *LoopbackDriver) Run(ctx context.Context) {
	d.Log.Info("loopback transport driver started")
	for {
		select {
		case <-ctx.Done():
			d.Log.Info("loopback transport driver stopped")
			return
		case data := <-d.pending:
			d.Poster.Post(bus.PacketInMsg{Data: data})
		}
	}
}
