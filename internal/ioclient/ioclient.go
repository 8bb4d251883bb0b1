// Package ioclient is the console I/O driver: it turns stdin bytes
// into DATA_OUT and writes DATA_IN bytes to stdout, the Go shape of
// driver_console.h's field set (session_id, name, download,
// first_chunk) in original_source/util/dns/dnscat2/client.
package ioclient

import (
	"bufio"
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/dnscat2go/dnstunnel/internal/bus"
)

// Console wires one session's DATA_OUT/DATA_IN to a pair of
// io.Reader/io.Writer streams, normally os.Stdin/os.Stdout. Like
// driver_console_t, it's bound to a single session id created ahead
// of time via session.Engine.CreateSession.
type Console struct {
	SessionID uint16
	// Download is the session's requested download filename, mirroring
	// driver_console_t.download. A non-empty Download means the session
	// is a one-way chunked download: Run never reads In, since
	// outgoing_data is never populated for such a session (spec.md
	// invariant 4) and posting DATA_OUT for one would just be dropped by
	// the engine anyway.
	Download string
	Poster   bus.Poster
	In       io.Reader
	Out      io.Writer
	Log      logrus.FieldLogger

	readSize int
}

// New returns a Console for sessionID, reading from in and writing
// DATA_IN to out. download must match the value the session was
// created with (session.Engine.CreateSession's download argument), so
// Run can tell a two-way session apart from a one-way chunked download.
// Outbound DATA_OUT messages are posted through poster (spec.md §5:
// Run is its own goroutine, so it must not touch a *bus.Bus directly —
// see bus.Poster).
func New(sessionID uint16, download string, poster bus.Poster, in io.Reader, out io.Writer, log logrus.FieldLogger) *Console {
	if log == nil {
		log = logrus.New()
	}
	return &Console{SessionID: sessionID, Download: download, Poster: poster, In: in, Out: out, Log: log, readSize: 4096}
}

// DataInHandler returns the bus.Handler to subscribe to bus.DataIn; it
// writes bytes addressed to SessionID to Out. Matches driver_console's
// role as the consumer side of DATA_IN in the original client.
func (c *Console) DataInHandler() bus.Handler {
	return func(m bus.Message) {
		msg := m.(bus.DataInMsg)
		if msg.SessionID != c.SessionID {
			return
		}
		if _, err := c.Out.Write(msg.Data); err != nil {
			c.Log.WithError(err).Warn("console: failed to write DATA_IN to stdout")
		}
	}
}

// Run reads from In until EOF, ctx cancellation, or a read error,
// posting each chunk as DATA_OUT. Grounded on the teacher's
// bufio.Scanner-driven read loops in main_test.go, generalized from
// line-delimited reads to raw byte chunks since dnscat2's tunnel
// carries an opaque byte stream, not newline-terminated records.
func (c *Console) Run(ctx context.Context) {
	c.Log.WithField("session_id", c.SessionID).Info("console I/O driver started")
	defer c.Log.WithField("session_id", c.SessionID).Info("console I/O driver stopped")

	if c.Download != "" {
		// One-way chunked download: DATA_IN (the downloaded bytes) still
		// flows to Out via DataInHandler, but there is nothing to send,
		// so In is never read.
		<-ctx.Done()
		return
	}

	reads := make(chan []byte)
	errs := make(chan error, 1)
	go func() {
		r := bufio.NewReaderSize(c.In, c.readSize)
		buf := make([]byte, c.readSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				cp := make([]byte, n)
				copy(cp, buf[:n])
				reads <- cp
			}
			if err != nil {
				errs <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-reads:
			c.Poster.Post(bus.DataOutMsg{SessionID: c.SessionID, Data: data})
		case err := <-errs:
			if err != io.EOF {
				c.Log.WithError(err).Warn("console: stdin read error")
			}
			return
		}
	}
}
