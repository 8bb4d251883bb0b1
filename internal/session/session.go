// Package session implements the per-tunnel reliability and
// multiplexing state machine: handshake, sequence/ACK arithmetic,
// retransmission, chunked download, and teardown.
//
// Grounded on original_source/util/dns/dnscat2/client/session.c and
// generalized the way eenblam-protohackers/7 (a UDP session/ACK/
// retransmit protocol of the same shape) structures its Session and
// Listener types.
package session

import (
	"time"

	"github.com/dnscat2go/dnstunnel/internal/packet"
)

// State is one of the two states a session occupies; closed sessions
// are removed from the registry rather than represented as a third
// state (spec.md §4.2).
type State int

const (
	StateNew State = iota
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateEstablished:
		return "ESTABLISHED"
	default:
		return "UNKNOWN"
	}
}

// RetransmitDelay is the minimum wall-clock gap between successive
// outbound packets for one session absent a valid reply (spec.md §4.3).
const RetransmitDelay = 1 * time.Second

// DefaultMaxPacketLength is the process-wide default for Engine's
// max packet length, overridable via a CONFIG message.
const DefaultMaxPacketLength = 10000

// Session is one logical byte-stream multiplexed over the DNS carrier.
// All fields are mutated only by the Engine on the dispatcher goroutine
// (spec.md §5); there is no internal locking.
type Session struct {
	ID    uint16
	State State

	MySeq    uint16
	TheirSeq uint16

	Options packet.Options

	Outgoing outgoingBuffer

	Name     string
	Download string

	DownloadFirstChunk   uint32
	DownloadCurrentChunk uint32

	IsCommand bool
	IsClosed  bool

	// LastTransmit is zero when the session may transmit immediately.
	LastTransmit time.Time
}

// chunkedMode reports whether this session is a one-way indexed
// download. spec.md §3 literally gates this on "first_chunk is
// non-zero", but §8 scenario 5 creates a chunked session with
// first_chunk:0 and expects chunked framing from the first SYN; the
// concrete scenario is taken as canonical (see DESIGN.md), so the
// gate is really "a download name was requested" and first_chunk is
// only the resume offset within that download.
func (s *Session) chunkedMode() bool {
	return s.Download != ""
}

// canTransmit implements the single pacing rule of spec.md §4.3: a
// session may transmit only once RetransmitDelay has elapsed since its
// last transmission (zero time satisfies this immediately).
func (s *Session) canTransmit(now time.Time) bool {
	if s.LastTransmit.IsZero() {
		return true
	}
	return now.Sub(s.LastTransmit) > RetransmitDelay
}

// resetCounter allows an immediate follow-up send, called after valid
// incoming data or ACK progress (spec.md §4.3).
func (s *Session) resetCounter() {
	s.LastTransmit = time.Time{}
}

// markTransmitted records that a packet was just sent.
func (s *Session) markTransmitted(now time.Time) {
	s.LastTransmit = now
}
