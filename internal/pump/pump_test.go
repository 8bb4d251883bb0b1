package pump

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dnscat2go/dnstunnel/internal/bus"
)

func TestRunPostsHeartbeatOnEachTick(t *testing.T) {
	b := bus.New()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	var ticks int
	b.Subscribe(bus.Heartbeat, func(m bus.Message) { ticks++ })

	p := New(b, 5*time.Millisecond, log)

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	if ticks < 2 {
		t.Fatalf("got %d heartbeats in 35ms at a 5ms interval, want at least 2", ticks)
	}
}

func TestRunStopsWhenContextCanceled(t *testing.T) {
	b := bus.New()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	p := New(b, time.Millisecond, log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestNewDefaultsZeroIntervalAndNilLogger(t *testing.T) {
	p := New(bus.New(), 0, nil)
	if p.Interval != DefaultInterval {
		t.Fatalf("got interval %v, want default %v", p.Interval, DefaultInterval)
	}
	if p.Log == nil {
		t.Fatal("expected a non-nil default logger")
	}
}
