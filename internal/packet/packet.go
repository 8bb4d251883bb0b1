// Package packet implements the wire framing the session engine builds
// and consumes: SYN, MSG (normal and chunked), FIN, and PING frames.
//
// spec.md treats the packet codec as an external collaborator (the DNS
// carrier's label encoding lives elsewhere); this package is the
// reference implementation of the contract that collaborator must
// satisfy, modeled on the teacher's message.go parser
// (eenblam-protohackers/7) and the field layout documented in
// original_source/dns/dnscat2/client/message.c.
package packet

import (
	"encoding/binary"
	"fmt"
)

// Type identifies a frame kind.
type Type uint8

const (
	TypeSYN Type = iota
	TypeMSG
	TypeFIN
	TypePING
)

func (t Type) String() string {
	switch t {
	case TypeSYN:
		return "SYN"
	case TypeMSG:
		return "MSG"
	case TypeFIN:
		return "FIN"
	case TypePING:
		return "PING"
	default:
		return "UNKNOWN"
	}
}

// Options is the negotiated bitfield from the SYN exchange. It governs
// MSG framing shape (chunked vs. normal) and which optional SYN fields
// were present. Options is immutable once a session reaches
// ESTABLISHED (spec.md §3, invariant 3).
type Options uint16

const (
	// OptChunkedDownload marks a session as a chunked, one-way download:
	// MSG frames carry a chunk index instead of a seq/ack pair.
	OptChunkedDownload Options = 1 << iota
	// OptNameSet marks that the SYN carried a non-empty Name field.
	OptNameSet
	// OptDownloadSet marks that the SYN carried a non-empty Download field.
	OptDownloadSet
	// OptIsCommand mirrors the SYN's is_command flag.
	OptIsCommand
)

// headerOverhead returns the number of bytes a MSG header consumes for
// the given negotiated options, used to size the outgoing peek window
// (spec.md §4.3: "max_packet_length - header_overhead(options)").
func headerOverhead(options Options) int {
	if options&OptChunkedDownload != 0 {
		// type(1) + session_id(2) + chunk(4)
		return 7
	}
	// type(1) + session_id(2) + seq(2) + ack(2) + data_length(2)
	return 9
}

// HeaderOverhead exposes headerOverhead for callers outside this
// package (the session engine's outbound discipline).
func HeaderOverhead(options Options) int {
	return headerOverhead(options)
}

// Packet is the parsed representation of one frame.
type Packet struct {
	Type      Type
	SessionID uint16

	// SYN fields.
	SynSeq      uint16
	SynOptions  Options
	Name        string
	Download    string

	// MSG-normal fields.
	Seq  uint16
	Ack  uint16
	Data []byte

	// MSG-chunked fields.
	Chunk uint32

	// FIN fields.
	Reason string

	// PING fields.
	Payload string
}

// NewSYN constructs a SYN packet. Optional fields are set via the
// packet_syn_set_* style helpers below, mirroring
// original_source/dns/dnscat2/client/session.c's do_send_stuff.
func NewSYN(sessionID, seq uint16) *Packet {
	return &Packet{Type: TypeSYN, SessionID: sessionID, SynSeq: seq}
}

func (p *Packet) SetName(name string) {
	p.Name = name
	p.SynOptions |= OptNameSet
}

func (p *Packet) SetDownload(download string) {
	p.Download = download
	p.SynOptions |= OptDownloadSet
}

func (p *Packet) SetChunkedDownload() {
	p.SynOptions |= OptChunkedDownload
}

func (p *Packet) SetIsCommand() {
	p.SynOptions |= OptIsCommand
}

// NewMSGNormal constructs a normal-mode MSG carrying a seq/ack pair and
// payload bytes. data is not copied; callers must not mutate it after
// the packet is serialized.
func NewMSGNormal(sessionID, seq, ack uint16, data []byte) *Packet {
	return &Packet{Type: TypeMSG, SessionID: sessionID, Seq: seq, Ack: ack, Data: data}
}

// NewMSGChunked constructs a chunked-mode MSG requesting the given
// chunk index. It never carries a payload on the wire out; the payload
// only appears on the inbound side (the peer's response).
func NewMSGChunked(sessionID uint16, chunk uint32) *Packet {
	return &Packet{Type: TypeMSG, SessionID: sessionID, Chunk: chunk}
}

// NewFIN constructs a FIN carrying a human-readable reason string.
func NewFIN(sessionID uint16, reason string) *Packet {
	return &Packet{Type: TypeFIN, SessionID: sessionID, Reason: reason}
}

// NewPING constructs a PING carrying an echoed payload. PING frames
// carry no session id (spec.md §4.4: parsed before session lookup).
func NewPING(payload string) *Packet {
	return &Packet{Type: TypePING, Payload: payload}
}

// Codec is the external contract the session engine depends on. A
// reference implementation (ReferenceCodec) is provided below; a real
// dnscat2-wire-compatible codec can be substituted without touching the
// session engine.
type Codec interface {
	// Serialize encodes p into bytes using the given negotiated options.
	Serialize(p *Packet, options Options) ([]byte, error)
	// Parse decodes bytes into a Packet using the given options. Options
	// only affects MSG framing; SYN/FIN/PING shape never depends on it.
	Parse(data []byte, options Options) (*Packet, error)
}

// ReferenceCodec is the default Codec implementation.
type ReferenceCodec struct{}

var _ Codec = ReferenceCodec{}

func putString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	buf = append(buf, s...)
	return buf
}

func takeString(data []byte) (string, []byte, error) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("packet: truncated string length")
	}
	n := binary.BigEndian.Uint16(data)
	data = data[2:]
	if len(data) < int(n) {
		return "", nil, fmt.Errorf("packet: truncated string body (want %d, have %d)", n, len(data))
	}
	return string(data[:n]), data[n:], nil
}

// Serialize encodes p. Layout: type(1) session_id(2) <type body>, except
// PING which carries no session id. The type byte leads so that parsing
// never has to guess a frame's kind from bytes that are also valid
// session-id bits (a session id is drawn uniformly at random over the
// full 16-bit range, so any byte position it occupies can take on any
// value, including one that aliases a Type constant).
func (ReferenceCodec) Serialize(p *Packet, options Options) ([]byte, error) {
	buf := make([]byte, 0, 16+len(p.Data))

	switch p.Type {
	case TypeSYN:
		buf = append(buf, byte(TypeSYN))
		buf = binary.BigEndian.AppendUint16(buf, p.SessionID)
		buf = binary.BigEndian.AppendUint16(buf, p.SynSeq)
		buf = binary.BigEndian.AppendUint16(buf, uint16(p.SynOptions))
		if p.SynOptions&OptNameSet != 0 {
			buf = putString(buf, p.Name)
		}
		if p.SynOptions&OptDownloadSet != 0 {
			buf = putString(buf, p.Download)
		}
		return buf, nil

	case TypeMSG:
		buf = append(buf, byte(TypeMSG))
		buf = binary.BigEndian.AppendUint16(buf, p.SessionID)
		if options&OptChunkedDownload != 0 {
			buf = binary.BigEndian.AppendUint32(buf, p.Chunk)
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.Data)))
			buf = append(buf, p.Data...)
			return buf, nil
		}
		buf = binary.BigEndian.AppendUint16(buf, p.Seq)
		buf = binary.BigEndian.AppendUint16(buf, p.Ack)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.Data)))
		buf = append(buf, p.Data...)
		return buf, nil

	case TypeFIN:
		buf = append(buf, byte(TypeFIN))
		buf = binary.BigEndian.AppendUint16(buf, p.SessionID)
		buf = putString(buf, p.Reason)
		return buf, nil

	case TypePING:
		// No session id on the wire for PING.
		buf = append(buf, byte(TypePING))
		buf = putString(buf, p.Payload)
		return buf, nil

	default:
		return nil, fmt.Errorf("packet: unknown type %v", p.Type)
	}
}

// Parse decodes data using options, per spec.md §4.4: callers parse
// once with zero options to discover Type/SessionID, then re-parse
// with the session's negotiated options once looked up.
func (ReferenceCodec) Parse(data []byte, options Options) (*Packet, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("packet: empty frame")
	}

	typ := Type(data[0])
	rest := data[1:]

	if typ == TypePING {
		payload, trailing, err := takeString(rest)
		if err != nil {
			return nil, fmt.Errorf("packet: parsing PING: %w", err)
		}
		if len(trailing) != 0 {
			return nil, fmt.Errorf("packet: trailing bytes after PING payload")
		}
		return &Packet{Type: TypePING, Payload: payload}, nil
	}

	if len(rest) < 2 {
		return nil, fmt.Errorf("packet: truncated header")
	}
	sessionID := binary.BigEndian.Uint16(rest)
	rest = rest[2:]

	switch typ {
	case TypeSYN:
		if len(rest) < 4 {
			return nil, fmt.Errorf("packet: truncated SYN")
		}
		seq := binary.BigEndian.Uint16(rest)
		synOptions := Options(binary.BigEndian.Uint16(rest[2:]))
		rest = rest[4:]

		p := &Packet{Type: TypeSYN, SessionID: sessionID, SynSeq: seq, SynOptions: synOptions}
		var err error
		if synOptions&OptNameSet != 0 {
			p.Name, rest, err = takeString(rest)
			if err != nil {
				return nil, fmt.Errorf("packet: parsing SYN name: %w", err)
			}
		}
		if synOptions&OptDownloadSet != 0 {
			p.Download, rest, err = takeString(rest)
			if err != nil {
				return nil, fmt.Errorf("packet: parsing SYN download: %w", err)
			}
		}
		if len(rest) != 0 {
			return nil, fmt.Errorf("packet: trailing bytes after SYN")
		}
		return p, nil

	case TypeMSG:
		if options&OptChunkedDownload != 0 {
			if len(rest) < 6 {
				return nil, fmt.Errorf("packet: truncated chunked MSG")
			}
			chunk := binary.BigEndian.Uint32(rest)
			length := binary.BigEndian.Uint16(rest[4:])
			rest = rest[6:]
			if len(rest) < int(length) {
				return nil, fmt.Errorf("packet: truncated chunked MSG body")
			}
			return &Packet{Type: TypeMSG, SessionID: sessionID, Chunk: chunk, Data: rest[:length]}, nil
		}
		if len(rest) < 6 {
			return nil, fmt.Errorf("packet: truncated MSG")
		}
		seq := binary.BigEndian.Uint16(rest)
		ack := binary.BigEndian.Uint16(rest[2:])
		length := binary.BigEndian.Uint16(rest[4:])
		rest = rest[6:]
		if len(rest) < int(length) {
			return nil, fmt.Errorf("packet: truncated MSG body")
		}
		return &Packet{Type: TypeMSG, SessionID: sessionID, Seq: seq, Ack: ack, Data: rest[:length]}, nil

	case TypeFIN:
		reason, rest, err := takeString(rest)
		if err != nil {
			return nil, fmt.Errorf("packet: parsing FIN reason: %w", err)
		}
		if len(rest) != 0 {
			return nil, fmt.Errorf("packet: trailing bytes after FIN")
		}
		return &Packet{Type: TypeFIN, SessionID: sessionID, Reason: reason}, nil

	default:
		return nil, fmt.Errorf("packet: unknown type 0x%02x", typ)
	}
}
