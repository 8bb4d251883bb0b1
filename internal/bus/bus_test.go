package bus

import (
	"context"
	"testing"
	"time"
)

func TestPostDeliversToSubscribersOfSameKind(t *testing.T) {
	b := New()
	var got []string
	b.Subscribe(Heartbeat, func(Message) { got = append(got, "a") })
	b.Subscribe(PingRequest, func(Message) { got = append(got, "b") })

	b.Post(HeartbeatMsg{})

	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("got %v, want [a]", got)
	}
}

func TestPostDeliversLastSubscribedFirst(t *testing.T) {
	b := New()
	var order []int
	b.Subscribe(Heartbeat, func(Message) { order = append(order, 1) })
	b.Subscribe(Heartbeat, func(Message) { order = append(order, 2) })
	b.Subscribe(Heartbeat, func(Message) { order = append(order, 3) })

	b.Post(HeartbeatMsg{})

	want := []int{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestUnsubscribedKindIsSilentlyDropped(t *testing.T) {
	b := New()
	// No subscribers at all; Post must not panic.
	b.Post(ShutdownMsg{})
}

func TestCreateSessionOutFieldIsFilledBeforePostReturns(t *testing.T) {
	b := New()
	b.Subscribe(CreateSession, func(m Message) {
		msg := m.(*CreateSessionMsg)
		msg.SessionID = 0xBEEF
	})

	msg := &CreateSessionMsg{Name: "t"}
	b.Post(msg)

	if msg.SessionID != 0xBEEF {
		t.Fatalf("got session id %#x, want 0xbeef", msg.SessionID)
	}
}

func TestReentrantPostIsDepthFirst(t *testing.T) {
	b := New()
	var order []string
	b.Subscribe(Heartbeat, func(Message) {
		order = append(order, "heartbeat-start")
		b.Post(PingRequestMsg{Payload: "nested"})
		order = append(order, "heartbeat-end")
	})
	b.Subscribe(PingRequest, func(Message) {
		order = append(order, "ping")
	})

	b.Post(HeartbeatMsg{})

	want := []string{"heartbeat-start", "ping", "heartbeat-end"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	called := false
	sub := b.Subscribe(Heartbeat, func(Message) { called = true })
	b.Unsubscribe(sub)

	b.Post(HeartbeatMsg{})

	if called {
		t.Fatal("handler ran after Unsubscribe")
	}
}

func TestDrainDeliversChannelPostedMessages(t *testing.T) {
	b := New()
	ticks := make(chan struct{}, 4)
	b.Subscribe(Heartbeat, func(Message) { ticks <- struct{}{} })

	inbox := make(chan Message, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Drain(ctx, inbox)
		close(done)
	}()

	poster := ChannelPoster(inbox)
	poster.Post(HeartbeatMsg{})
	poster.Post(HeartbeatMsg{})

	for i := 0; i < 2; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatalf("only got %d of 2 deliveries", i)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Drain did not return after cancellation")
	}
}
