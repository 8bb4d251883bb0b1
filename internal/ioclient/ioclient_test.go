package ioclient

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dnscat2go/dnstunnel/internal/bus"
)

func TestRunPostsStdinAsDataOutForOwningSession(t *testing.T) {
	b := bus.New()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	c := New(7, "", b, strings.NewReader("hello world"), &bytes.Buffer{}, log)

	var got []byte
	done := make(chan struct{})
	b.Subscribe(bus.DataOut, func(m bus.Message) {
		msg := m.(bus.DataOutMsg)
		if msg.SessionID != 7 {
			t.Fatalf("got session id %d, want 7", msg.SessionID)
		}
		got = append(got, msg.Data...)
		if string(got) == "hello world" {
			close(done)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("got %q, want \"hello world\"", got)
	}
}

func TestDataInHandlerWritesOnlyMatchingSession(t *testing.T) {
	out := &bytes.Buffer{}
	c := New(3, "", bus.New(), strings.NewReader(""), out, nil)
	h := c.DataInHandler()

	h(bus.DataInMsg{SessionID: 99, Data: []byte("not mine")})
	if out.Len() != 0 {
		t.Fatalf("wrote data for the wrong session: %q", out.String())
	}

	h(bus.DataInMsg{SessionID: 3, Data: []byte("mine")})
	if out.String() != "mine" {
		t.Fatalf("got %q, want \"mine\"", out.String())
	}
}

func TestRunStopsOnEOFWithoutError(t *testing.T) {
	b := bus.New()
	c := New(1, "", b, strings.NewReader(""), &bytes.Buffer{}, nil)

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after EOF")
	}
}

func TestRunNeverReadsStdinForChunkedDownload(t *testing.T) {
	b := bus.New()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	var posted []bus.DataOutMsg
	b.Subscribe(bus.DataOut, func(m bus.Message) { posted = append(posted, m.(bus.DataOutMsg)) })

	c := New(5, "loot.bin", b, strings.NewReader("should never be read"), &bytes.Buffer{}, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// Give Run a moment to (wrongly) start reading if it were going to.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if len(posted) != 0 {
		t.Fatalf("got %d DATA_OUT posts for a chunked-download session, want 0", len(posted))
	}
}
