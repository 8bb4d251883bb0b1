package session

import (
	"github.com/sirupsen/logrus"

	"github.com/dnscat2go/dnstunnel/internal/bus"
	"github.com/dnscat2go/dnstunnel/internal/packet"
)

// attemptSend implements the single pacing rule and send-selection
// table of spec.md §4.3 (do_send_stuff in the teacher source).
// Retransmission is implicit: because bytes aren't consumed from
// Outgoing until a valid ACK arrives, the next call to attemptSend
// naturally resends whatever is still unacknowledged.
func (e *Engine) attemptSend(s *Session) {
	now := e.now()
	if !s.canTransmit(now) {
		e.Log.WithField("session_id", s.ID).Debug("retransmission timer hasn't expired, not sending")
		return
	}

	var p *packet.Packet
	wasRetransmit := s.Outgoing.Len() > 0 && !s.LastTransmit.IsZero()

	switch s.State {
	case StateNew:
		p = packet.NewSYN(s.ID, s.MySeq)
		if s.Name != "" {
			p.SetName(s.Name)
		}
		if s.Download != "" {
			p.SetDownload(s.Download)
		}
		if s.chunkedMode() {
			p.SetChunkedDownload()
		}
		if s.IsCommand {
			p.SetIsCommand()
		}

	case StateEstablished:
		if s.chunkedMode() {
			p = packet.NewMSGChunked(s.ID, s.DownloadCurrentChunk)
		} else {
			peekSize := e.maxPacketLength - packet.HeaderOverhead(s.Options)
			data := s.Outgoing.Peek(peekSize)
			p = packet.NewMSGNormal(s.ID, s.MySeq, s.TheirSeq, data)
		}

	default:
		e.Log.WithField("state", s.State).Fatal("session in unknown state")
		return
	}

	e.sendPacket(s, p)
	s.markTransmitted(now)

	if wasRetransmit && e.Metrics != nil {
		e.Metrics.Retransmits.Inc()
	}
}

// sendPacket serializes p with s's negotiated options and posts it as
// PACKET_OUT. The engine never performs transport I/O directly
// (spec.md §5): it posts and returns.
func (e *Engine) sendPacket(s *Session, p *packet.Packet) {
	data, err := e.Codec.Serialize(p, s.Options)
	if err != nil {
		e.Log.WithFields(logrus.Fields{"session_id": s.ID, "type": p.Type}).WithError(err).Error("failed to serialize outgoing packet")
		return
	}
	e.Bus.Post(bus.PacketOutMsg{Data: data})
	if e.Metrics != nil {
		e.Metrics.PacketsOut.Inc()
	}
}
