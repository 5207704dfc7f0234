package signal

import (
	"testing"
	"time"
)

func TestRendezvousAlreadyPublished(t *testing.T) {
	b := NewBroker()
	b.Dispatch(Signal{Tag: Start, ID: 7, Port: 51234})

	port, found, _, _ := b.Rendezvous(7)
	if !found {
		t.Fatalf("expected port to be found immediately")
	}
	if port != 51234 {
		t.Fatalf("expected port 51234, got %d", port)
	}
}

// TestRendezvousSubscriberFirst reproduces spec scenario 6: a subscriber
// constructed before the publisher's Start arrives subscribes to the
// broker and learns the port on the next Dispatch.
func TestRendezvousSubscriberFirst(t *testing.T) {
	b := NewBroker()

	port, found, index, ch := b.Rendezvous(7)
	if found {
		t.Fatalf("expected not found before any Start")
	}
	if port != 0 {
		t.Fatalf("expected zero port when not found")
	}

	b.Dispatch(Signal{Tag: Start, ID: 7, Port: 51234})

	select {
	case sig := <-ch:
		if sig.Tag != Start || sig.ID != 7 || sig.Port != 51234 {
			t.Fatalf("unexpected signal: %+v", sig)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for Start signal")
	}

	b.Unsubscribe(index)

	// Stop{7} removes the publishes mapping but does not affect anything
	// the receiver already has — Unsubscribe already happened, closing
	// does not come from the broker.
	b.Dispatch(Signal{Tag: Stop, ID: 7})
	if _, found := b.Publish(7); found {
		t.Fatalf("expected publish mapping to be removed after Stop")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	index, ch := b.Subscribe()
	b.Unsubscribe(index)

	_, ok := <-ch
	if ok {
		t.Fatalf("expected channel to be closed after Unsubscribe")
	}

	// Idempotent.
	b.Unsubscribe(index)
}

func TestDispatchFansOutToAllSubscribers(t *testing.T) {
	b := NewBroker()
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	sig := Signal{Tag: Start, ID: 1, Port: 10}
	b.Dispatch(sig)

	for _, ch := range []<-chan Signal{ch1, ch2} {
		select {
		case got := <-ch:
			if got != sig {
				t.Fatalf("unexpected signal: %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for fan-out")
		}
	}
}

func TestStopRemovesPublishMapping(t *testing.T) {
	b := NewBroker()
	b.Dispatch(Signal{Tag: Start, ID: 3, Port: 9000})
	if _, ok := b.Publish(3); !ok {
		t.Fatalf("expected publish mapping after Start")
	}

	b.Dispatch(Signal{Tag: Stop, ID: 3})
	if _, ok := b.Publish(3); ok {
		t.Fatalf("expected publish mapping removed after Stop")
	}
}
