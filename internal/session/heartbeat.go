package session

import (
	"github.com/dnscat2go/dnstunnel/internal/bus"
	"github.com/dnscat2go/dnstunnel/internal/packet"
)

// handleHeartbeat implements spec.md §4.5: compact drained buffers,
// attempt a send per live session, sweep closed-and-drained sessions,
// and exit cleanly once the registry is empty under shutdown.
func (e *Engine) handleHeartbeat() {
	var toRemove []uint16

	e.Registry.Each(func(s *Session) {
		if s.Outgoing.Len() == 0 {
			s.Outgoing.Compact()
		}
		e.attemptSend(s)

		if s.IsClosed && s.Outgoing.Len() == 0 {
			toRemove = append(toRemove, s.ID)
		}
	})

	for _, id := range toRemove {
		e.reapSession(id)
	}

	if e.Metrics != nil {
		e.Metrics.LiveSessions.Set(float64(e.Registry.Len()))
	}

	if e.Registry.Len() == 0 && e.isShutdown {
		e.Log.Info("everything's done, shutting down")
		e.exit(0)
	}
}

// reapSession sends a final FIN, publishes SESSION_CLOSED, and unlinks
// the session (spec.md §9's design note (a): the correct event here is
// SESSION_CLOSED, not CLOSE_SESSION, fixing the copy-paste typo in
// message_post_session_closed).
func (e *Engine) reapSession(id uint16) {
	s, ok := e.Registry.Get(id)
	if !ok {
		return
	}

	fin := packet.NewFIN(id, "Session closed")
	e.sendPacket(s, fin)

	e.Log.WithField("session_id", id).Warn("session is out of data and closed, reaping it")
	e.Bus.Post(bus.SessionClosedMsg{SessionID: id})

	e.Registry.Remove(id)
	if e.Metrics != nil {
		e.Metrics.SessionsClosed.Inc()
	}
}
