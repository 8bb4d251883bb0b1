package bus

// ConfigValueType distinguishes the two CONFIG payload shapes, mirroring
// the teacher's config_type_t (CONFIG_INT / CONFIG_STRING).
type ConfigValueType int

const (
	ConfigInt ConfigValueType = iota
	ConfigString
)

// ConfigMsg carries one named configuration setting. Recognized names
// today: "max_packet_length" (ConfigInt, default 10000). Unknown names
// are ignored by every subscriber.
type ConfigMsg struct {
	Name        string
	Type        ConfigValueType
	IntValue    int
	StringValue string
}

func (ConfigMsg) Kind() Kind { return Config }

// ShutdownMsg carries no fields; receipt latches shutdown.
type ShutdownMsg struct{}

func (ShutdownMsg) Kind() Kind { return Shutdown }

// CreateSessionMsg is the one in-band request/response message: the
// session engine's handler fills SessionID before Post returns.
type CreateSessionMsg struct {
	Name       string
	Download   string
	FirstChunk uint32
	IsCommand  bool

	// SessionID is the out-field, set synchronously by the handler.
	SessionID uint16
}

func (CreateSessionMsg) Kind() Kind { return CreateSession }

type SessionCreatedMsg struct {
	SessionID uint16
}

func (SessionCreatedMsg) Kind() Kind { return SessionCreated }

type CloseSessionMsg struct {
	SessionID uint16
}

func (CloseSessionMsg) Kind() Kind { return CloseSession }

type SessionClosedMsg struct {
	SessionID uint16
}

func (SessionClosedMsg) Kind() Kind { return SessionClosed }

type DataOutMsg struct {
	SessionID uint16
	Data      []byte
}

func (DataOutMsg) Kind() Kind { return DataOut }

type DataInMsg struct {
	SessionID uint16
	Data      []byte
}

func (DataInMsg) Kind() Kind { return DataIn }

// PacketOutMsg/PacketInMsg each carry one serialized frame. Ownership
// rule (spec.md §9): the publisher hands the byte slice to the bus, and
// the bus hands it to each subscriber as a shared read-only borrow for
// the duration of the call; a subscriber that needs to retain bytes
// past its handler call must copy them.
type PacketOutMsg struct {
	Data []byte
}

func (PacketOutMsg) Kind() Kind { return PacketOut }

type PacketInMsg struct {
	Data []byte
}

func (PacketInMsg) Kind() Kind { return PacketIn }

type HeartbeatMsg struct{}

func (HeartbeatMsg) Kind() Kind { return Heartbeat }

type PingRequestMsg struct {
	Payload string
}

func (PingRequestMsg) Kind() Kind { return PingRequest }

type PingResponseMsg struct {
	Payload string
}

func (PingResponseMsg) Kind() Kind { return PingResponse }
