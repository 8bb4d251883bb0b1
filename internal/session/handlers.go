package session

import (
	"github.com/sirupsen/logrus"

	"github.com/dnscat2go/dnstunnel/internal/bus"
	"github.com/dnscat2go/dnstunnel/internal/packet"
)

// handleConfig implements spec.md §6's recognized CONFIG options;
// unknown names are ignored, mirroring handle_config_string's empty
// body in original_source/util/dns/dnscat2/client/session.c.
func (e *Engine) handleConfig(msg bus.ConfigMsg) {
	if msg.Type != bus.ConfigInt || msg.Name != "max_packet_length" {
		return
	}
	if msg.IntValue <= 0 {
		e.Log.WithField("value", msg.IntValue).Warn("ignoring non-positive max_packet_length")
		return
	}
	e.maxPacketLength = msg.IntValue
	e.Log.WithField("max_packet_length", e.maxPacketLength).Info("updated max_packet_length")
}

// handleShutdown latches is_shutdown and posts CLOSE_SESSION for every
// live session (spec.md §4.7).
func (e *Engine) handleShutdown() {
	e.Log.Info("received SHUTDOWN message")
	e.isShutdown = true

	var ids []uint16
	e.Registry.Each(func(s *Session) { ids = append(ids, s.ID) })
	for _, id := range ids {
		e.Bus.Post(bus.CloseSessionMsg{SessionID: id})
	}
}

// CreateSession is the direct-call realization of spec.md §9's design
// note: CREATE_SESSION's out-field is filled by calling this method,
// not by a pure fire-and-forget bus round trip. It also posts
// SESSION_CREATED synchronously, per spec.md §3's lifecycle note.
func (e *Engine) CreateSession(name, download string, firstChunk uint32, isCommand bool) uint16 {
	id := e.Registry.allocateID()

	s := &Session{
		ID:                   id,
		State:                StateNew,
		MySeq:                e.Registry.randSeq(),
		Name:                 name,
		Download:             download,
		DownloadFirstChunk:   firstChunk,
		DownloadCurrentChunk: firstChunk,
		IsCommand:            isCommand,
	}
	e.Registry.Insert(s)
	if e.Metrics != nil {
		e.Metrics.LiveSessions.Set(float64(e.Registry.Len()))
	}

	e.Log.WithFields(logrus.Fields{
		"session_id": id,
		"name":       name,
		"download":   download,
		"chunked":    download != "",
	}).Info("session created")

	e.Bus.Post(bus.SessionCreatedMsg{SessionID: id})

	return id
}

func (e *Engine) handleCloseSession(id uint16) {
	s, ok := e.Registry.Get(id)
	if !ok {
		e.Log.WithField("session_id", id).Error("tried to close a non-existent session")
		return
	}
	if s.IsClosed {
		e.Log.WithField("session_id", id).Warn("trying to close an already-closed session")
		return
	}
	// Mark closed; the heartbeat pump removes it once outgoing_data drains.
	s.IsClosed = true
}

func (e *Engine) handleDataOut(id uint16, data []byte) {
	s, ok := e.Registry.Get(id)
	if !ok {
		e.Log.WithField("session_id", id).Error("tried to write to a non-existent session")
		return
	}
	if s.chunkedMode() {
		// A chunked-mode download is one-way: outgoing_data is never
		// populated, so it's never sent (spec.md invariant 4, §4.4).
		e.Log.WithField("session_id", id).Warn("dropping DATA_OUT for a chunked-download session")
		return
	}
	s.Outgoing.Append(data)
	e.attemptSend(s)
}

// handlePingRequest builds and emits a PING packet carrying payload.
// PING bypasses session lookup entirely (spec.md §9.1: PING is parsed
// before sessions_get_by_id in the original source).
func (e *Engine) handlePingRequest(payload string) {
	p := packet.NewPING(payload)
	data, err := e.Codec.Serialize(p, 0)
	if err != nil {
		e.Log.WithError(err).Error("failed to serialize PING")
		return
	}
	e.Bus.Post(bus.PacketOutMsg{Data: data})
	if e.Metrics != nil {
		e.Metrics.PacketsOut.Inc()
	}
}
