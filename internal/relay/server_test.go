package relay

import (
	"net"
	"testing"
	"time"

	"github.com/mycrl/mirror/internal/signal"
)

func TestBroadcastSignalWritesToEveryConnectedClient(t *testing.T) {
	s := NewServer(nil, nil, nil)

	serverA, clientA := net.Pipe()
	serverB, clientB := net.Pipe()
	defer clientA.Close()
	defer clientB.Close()

	s.signalConns[serverA] = struct{}{}
	s.signalConns[serverB] = struct{}{}

	go s.broadcastSignal(signal.Signal{Tag: signal.Start, ID: 7, Port: 5000})

	for _, c := range []net.Conn{clientA, clientB} {
		buf := make([]byte, 64)
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := c.Read(buf)
		if err != nil {
			t.Fatalf("expected to read broadcast signal, got error: %v", err)
		}

		consumed, sig, complete, err := signal.DecodeOne(buf[:n])
		if !complete || err != nil {
			t.Fatalf("expected a complete decoded signal, got complete=%v err=%v", complete, err)
		}
		if consumed != n {
			t.Fatalf("expected to consume the whole frame, got %d of %d", consumed, n)
		}
		if sig.Tag != signal.Start || sig.ID != 7 || sig.Port != 5000 {
			t.Fatalf("unexpected signal: %+v", sig)
		}
	}
}

func TestDrainSignalConnRemovesClosedConnection(t *testing.T) {
	s := NewServer(nil, nil, nil)

	serverSide, clientSide := net.Pipe()
	s.signalConns[serverSide] = struct{}{}

	done := make(chan struct{})
	go func() {
		s.drainSignalConn(serverSide, "test-conn")
		close(done)
	}()

	clientSide.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("drainSignalConn did not return after client closed")
	}

	s.signalMu.Lock()
	_, stillPresent := s.signalConns[serverSide]
	s.signalMu.Unlock()
	if stillPresent {
		t.Fatalf("expected connection to be removed from signalConns")
	}
}

func TestFireEventIsNoOpWithoutHookManager(t *testing.T) {
	s := NewServer(nil, nil, nil)
	s.fireEvent(EventStreamStart, 1, "")
}

func TestFireEventDispatchesToRegisteredHook(t *testing.T) {
	hm := NewHookManager(DefaultHookConfig())
	received := make(chan Event, 1)
	hm.RegisterHook(EventStreamStart, hookFunc(func(event Event) error {
		received <- event
		return nil
	}))

	s := NewServer(hm, nil, nil)
	s.fireEvent(EventStreamStart, 42, "203.0.113.5")

	select {
	case event := <-received:
		if event.ChannelID != 42 {
			t.Fatalf("expected channel id 42, got %d", event.ChannelID)
		}
		if event.RemoteIP != "203.0.113.5" {
			t.Fatalf("expected remote ip to be set, got %q", event.RemoteIP)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("hook was not invoked")
	}
}

func TestActiveStreamsReflectsRegistry(t *testing.T) {
	s := NewServer(nil, nil, nil)
	if s.ActiveStreams() != 0 {
		t.Fatalf("expected 0 active streams initially")
	}

	s.registry.RegisterPublisher(1, 5000, nil)
	if s.ActiveStreams() != 1 {
		t.Fatalf("expected 1 active stream, got %d", s.ActiveStreams())
	}
}
