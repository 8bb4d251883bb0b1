package session

import (
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dnscat2go/dnstunnel/internal/bus"
	"github.com/dnscat2go/dnstunnel/internal/metrics"
	"github.com/dnscat2go/dnstunnel/internal/packet"
)

// Engine is the session layer's single owner of process-wide state
// (spec.md §9's design note prefers a single struct over C's module-
// level globals): the registry, the shutdown latch, and the negotiated
// max packet length all live here, injected explicitly into handlers
// rather than read from package-level variables.
type Engine struct {
	Bus      *bus.Bus
	Registry *Registry
	Codec    packet.Codec
	Metrics  *metrics.Metrics
	Log      logrus.FieldLogger

	maxPacketLength int
	isShutdown      bool

	// now and exit are overridable for deterministic tests; they default
	// to time.Now and os.Exit respectively.
	now  func() time.Time
	exit func(code int)

	subs []bus.Subscription
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the engine's notion of "now", for deterministic
// retransmission-timing tests (spec.md §8 scenario 3).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithExit overrides the engine's process-exit hook, so tests can
// observe a process-fatal condition without killing the test binary.
func WithExit(exit func(code int)) Option {
	return func(e *Engine) { e.exit = exit }
}

// WithRandSource overrides the source used to draw session ids,
// for reproducible tests (spec.md §3: "chosen uniformly at random").
func WithRandSource(src rand.Source) Option {
	return func(e *Engine) { e.Registry = NewRegistry(src) }
}

// NewEngine constructs an Engine, wires its handlers to b, and returns
// it ready to use.
func NewEngine(b *bus.Bus, codec packet.Codec, m *metrics.Metrics, log logrus.FieldLogger, opts ...Option) *Engine {
	e := &Engine{
		Bus:             b,
		Registry:        NewRegistry(nil),
		Codec:           codec,
		Metrics:         m,
		Log:             log,
		maxPacketLength: DefaultMaxPacketLength,
		now:             time.Now,
		exit:            os.Exit,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.subscribe()
	return e
}

func (e *Engine) subscribe() {
	e.subs = append(e.subs,
		e.Bus.Subscribe(bus.Config, e.handleBusMessage),
		e.Bus.Subscribe(bus.Shutdown, e.handleBusMessage),
		e.Bus.Subscribe(bus.CreateSession, e.handleBusMessage),
		e.Bus.Subscribe(bus.CloseSession, e.handleBusMessage),
		e.Bus.Subscribe(bus.DataOut, e.handleBusMessage),
		e.Bus.Subscribe(bus.PingRequest, e.handleBusMessage),
		e.Bus.Subscribe(bus.PacketIn, e.handleBusMessage),
		e.Bus.Subscribe(bus.Heartbeat, e.handleBusMessage),
	)
}

func (e *Engine) handleBusMessage(m bus.Message) {
	switch msg := m.(type) {
	case bus.ConfigMsg:
		e.handleConfig(msg)
	case bus.ShutdownMsg:
		e.handleShutdown()
	case *bus.CreateSessionMsg:
		msg.SessionID = e.CreateSession(msg.Name, msg.Download, msg.FirstChunk, msg.IsCommand)
	case bus.CloseSessionMsg:
		e.handleCloseSession(msg.SessionID)
	case bus.DataOutMsg:
		e.handleDataOut(msg.SessionID, msg.Data)
	case bus.PingRequestMsg:
		e.handlePingRequest(msg.Payload)
	case bus.PacketInMsg:
		e.handlePacketIn(msg.Data)
	case bus.HeartbeatMsg:
		e.handleHeartbeat()
	}
}
