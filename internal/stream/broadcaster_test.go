// ABOUTME: Broadcaster fan-out tests
// ABOUTME: Subscription bookkeeping, delivery, and drop-on-slow behavior
package stream

import (
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	l1 := b.Subscribe()
	l2 := b.Subscribe()
	if b.ListenerCount() != 2 {
		t.Errorf("ListenerCount = %d, want 2", b.ListenerCount())
	}

	b.Unsubscribe(l1)
	if b.ListenerCount() != 1 {
		t.Errorf("ListenerCount = %d, want 1", b.ListenerCount())
	}

	select {
	case <-l1.Done():
	default:
		t.Error("unsubscribed listener should be done")
	}

	b.Unsubscribe(l2)
	b.Unsubscribe(l2) // double unsubscribe must be harmless
	if b.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d, want 0", b.ListenerCount())
	}
}

func TestPublishDelivers(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()

	b.Publish([]byte{1, 2, 3})

	select {
	case got := <-l.C:
		if len(got) != 3 || got[0] != 1 {
			t.Errorf("got payload %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("payload never delivered")
	}
}

func TestPublishDropsForSlowListener(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()

	// Overfill the listener buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Publish([]byte{byte(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow listener")
	}

	if got := len(l.C); got > cap(l.C) {
		t.Errorf("listener holds %d frames, cap %d", got, cap(l.C))
	}
}

func TestCloseAll(t *testing.T) {
	b := NewBroadcaster()
	l1 := b.Subscribe()
	l2 := b.Subscribe()

	b.CloseAll()

	for _, l := range []*Listener{l1, l2} {
		select {
		case <-l.Done():
		default:
			t.Error("listener not released by CloseAll")
		}
	}
	if b.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d, want 0", b.ListenerCount())
	}
}
