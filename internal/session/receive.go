package session

import (
	"github.com/sirupsen/logrus"

	"github.com/dnscat2go/dnstunnel/internal/bus"
	"github.com/dnscat2go/dnstunnel/internal/packet"
)

// handlePacketIn implements spec.md §4.4's inbound processing pipeline.
//
// Design note (b) in spec.md §9 calls out a use-after-free in the
// original C source: it dereferences packet->session_id after
// packet_destroy in the "no session" branch. Go has no manual
// lifetime to get wrong here, but the fix is made explicit anyway: the
// session id is captured from the first (zero-options) parse before
// any further parsing or session lookup happens.
func (e *Engine) handlePacketIn(data []byte) {
	first, err := e.Codec.Parse(data, 0)
	if err != nil {
		e.Log.WithError(err).Warn("dropping unparseable packet")
		e.dropped("parse_error")
		return
	}

	if first.Type == packet.TypePING {
		e.Bus.Post(bus.PingResponseMsg{Payload: first.Payload})
		return
	}

	sessionID := first.SessionID

	s, ok := e.Registry.Get(sessionID)
	if !ok {
		e.Log.WithField("session_id", sessionID).Error("tried to access a non-existent session")
		e.dropped("no_session")
		return
	}

	p, err := e.Codec.Parse(data, s.Options)
	if err != nil {
		e.Log.WithField("session_id", sessionID).WithError(err).Warn("dropping unparseable packet (negotiated options)")
		e.dropped("parse_error")
		return
	}

	pollRightAway := false

	switch s.State {
	case StateNew:
		pollRightAway = e.handlePacketInNew(s, p)
	case StateEstablished:
		pollRightAway = e.handlePacketInEstablished(s, p)
	default:
		e.Log.WithField("state", s.State).Fatal("session in unknown state")
	}

	if pollRightAway {
		e.attemptSend(s)
	}
}

// handlePacketInNew implements the NEW-state row of spec.md §4.2's
// transition table.
func (e *Engine) handlePacketInNew(s *Session, p *packet.Packet) bool {
	switch p.Type {
	case packet.TypeSYN:
		e.Log.WithFields(logrus.Fields{"session_id": s.ID, "their_isn": p.SynSeq}).Info("received SYN, session established")
		s.TheirSeq = p.SynSeq
		s.Options = p.SynOptions
		s.State = StateEstablished
		return false

	case packet.TypeMSG:
		e.Log.WithField("session_id", s.ID).Warn("received unexpected MSG in NEW, ignoring")
		e.dropped("benign_wrong_state")
		return false

	case packet.TypeFIN:
		e.Log.WithFields(logrus.Fields{"session_id": s.ID, "reason": p.Reason}).Error("received FIN while in NEW, peer rejected session")
		e.exit(1)
		return false

	default:
		e.Log.WithField("type", p.Type).Fatal("unknown packet type")
		return false
	}
}

// handlePacketInEstablished implements the ESTABLISHED-state row of
// spec.md §4.2's transition table and §4.4's MSG validation rules.
func (e *Engine) handlePacketInEstablished(s *Session, p *packet.Packet) bool {
	switch p.Type {
	case packet.TypeSYN:
		e.Log.WithField("session_id", s.ID).Warn("received SYN in ESTABLISHED, ignoring")
		e.dropped("benign_wrong_state")
		return false

	case packet.TypeMSG:
		if s.chunkedMode() {
			return e.handleChunkedMSG(s, p)
		}
		return e.handleNormalMSG(s, p)

	case packet.TypeFIN:
		e.Log.WithFields(logrus.Fields{"session_id": s.ID, "reason": p.Reason}).Error("received FIN in ESTABLISHED, closing session")
		e.Bus.Post(bus.CloseSessionMsg{SessionID: s.ID})
		return false

	default:
		e.Log.WithFields(logrus.Fields{"session_id": s.ID, "type": p.Type}).Error("unknown packet type in ESTABLISHED, closing session")
		e.Bus.Post(bus.CloseSessionMsg{SessionID: s.ID})
		return false
	}
}

// handleChunkedMSG implements spec.md §4.4's chunked-mode MSG validation.
func (e *Engine) handleChunkedMSG(s *Session, p *packet.Packet) bool {
	if p.Chunk != s.DownloadCurrentChunk {
		e.Log.WithFields(logrus.Fields{
			"session_id": s.ID, "got_chunk": p.Chunk, "want_chunk": s.DownloadCurrentChunk,
		}).Warn("bad chunk received")
		e.dropped("bad_chunk")
		return false
	}

	if len(p.Data) > 0 {
		e.Bus.Post(bus.DataInMsg{SessionID: s.ID, Data: p.Data})
	}
	s.DownloadCurrentChunk++
	s.resetCounter()
	if e.Metrics != nil {
		e.Metrics.ChunksReceived.Inc()
	}
	return true
}

// handleNormalMSG implements spec.md §4.4's normal-mode MSG validation:
// bad ACK and bad SEQ are dropped; a valid MSG advances my_seq/their_seq
// and consumes acknowledged bytes from Outgoing.
func (e *Engine) handleNormalMSG(s *Session, p *packet.Packet) bool {
	bytesAcked := p.Ack - s.MySeq // unsigned 16-bit modular subtraction

	if int(bytesAcked) > s.Outgoing.Len() {
		e.Log.WithFields(logrus.Fields{
			"session_id": s.ID, "bytes_acked": bytesAcked, "buffered": s.Outgoing.Len(),
		}).Warn("bad ACK received")
		e.dropped("bad_ack")
		return false
	}

	if p.Seq != s.TheirSeq {
		e.Log.WithFields(logrus.Fields{
			"session_id": s.ID, "got_seq": p.Seq, "want_seq": s.TheirSeq,
		}).Warn("bad SEQ received")
		e.dropped("bad_seq")
		return false
	}

	s.resetCounter()

	s.TheirSeq = s.TheirSeq + uint16(len(p.Data))

	pollRightAway := false

	s.Outgoing.Consume(int(bytesAcked))
	if bytesAcked != 0 {
		s.MySeq = s.MySeq + bytesAcked
		pollRightAway = true
	}

	if len(p.Data) > 0 {
		e.Bus.Post(bus.DataInMsg{SessionID: s.ID, Data: p.Data})
		pollRightAway = true
	}

	return pollRightAway
}

func (e *Engine) dropped(reason string) {
	if e.Metrics != nil {
		e.Metrics.PacketsDropped.WithLabelValues(reason).Inc()
	}
}
