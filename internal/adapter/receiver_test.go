package adapter

import (
	"testing"

	"github.com/mycrl/mirror/internal/wire"
)

func TestPacketFilterDropsUntilFirstConfig(t *testing.T) {
	var f PacketFilter

	if f.Filter(0, true) {
		t.Fatalf("expected non-Config packet to be dropped before initialization")
	}
	if f.Filter(wire.KeyFrame, true) {
		t.Fatalf("expected KeyFrame without Config to be dropped before initialization")
	}
	if !f.Filter(wire.Config, true) {
		t.Fatalf("expected first Config to be admitted")
	}
}

func TestPacketFilterDropsDuplicateConfig(t *testing.T) {
	var f PacketFilter
	f.Filter(wire.Config, true)

	if f.Filter(wire.Config, true) {
		t.Fatalf("expected duplicate Config to be dropped")
	}
}

func TestPacketFilterVideoGatesOnKeyFrameAfterLoss(t *testing.T) {
	var f PacketFilter
	f.Filter(wire.Config, true)
	if !f.Filter(wire.KeyFrame, true) {
		t.Fatalf("expected first KeyFrame to be admitted")
	}
	if !f.Filter(0, true) {
		t.Fatalf("expected P-frame to be admitted while readable")
	}

	f.Loss()

	if f.Filter(0, true) {
		t.Fatalf("expected P-frame to be dropped after loss")
	}
	if f.Filter(0, true) {
		t.Fatalf("expected another P-frame to be dropped after loss")
	}
	if !f.Filter(wire.KeyFrame, true) {
		t.Fatalf("expected KeyFrame to restore readability")
	}
	if !f.Filter(0, true) {
		t.Fatalf("expected P-frame to be admitted again after KeyFrame")
	}
}

func TestPacketFilterAudioHasNoKeyFrameGate(t *testing.T) {
	var f PacketFilter
	f.Filter(wire.Config, false)

	// Audio has no keyframe concept: every non-Config packet passes once
	// initialized, loss() is never applied to it.
	for i := 0; i < 5; i++ {
		if !f.Filter(0, false) {
			t.Fatalf("expected audio packet %d to be admitted", i)
		}
	}
}

func recvAll(t *testing.T, a *StreamReceiverAdapter, n int) []Unit {
	t.Helper()
	out := make([]Unit, 0, n)
	for i := 0; i < n; i++ {
		u, ok := a.Next()
		if !ok {
			t.Fatalf("adapter closed early after %d units", i)
		}
		out = append(out, u)
	}
	return out
}

// TestReceiverAdapterMidStreamJoin reproduces spec scenario 3: a receiver
// adapter instantiated just before the second KeyFrame admits the
// prepended Config, that KeyFrame, and the trailing P, dropping
// everything before it.
func TestReceiverAdapterMidStreamJoin(t *testing.T) {
	a := NewStreamReceiverAdapter()

	// Packets the receiver never saw (sent before it joined) are simply
	// never delivered to Send — joining mid-stream means starting the
	// feed here.
	a.Send([]byte("config"), wire.Video, wire.Config, 10) // prepended before KeyFrame #2
	a.Send([]byte("key2"), wire.Video, wire.KeyFrame, 11)
	a.Send([]byte("p"), wire.Video, 0, 12)
	a.Close()

	got := recvAll(t, a, 3)
	if string(got[0].Payload) != "config" || got[0].Flags != wire.Config {
		t.Fatalf("expected Config first, got %+v", got[0])
	}
	if string(got[1].Payload) != "key2" || got[1].Flags != wire.KeyFrame {
		t.Fatalf("expected KeyFrame #2 second, got %+v", got[1])
	}
	if string(got[2].Payload) != "p" {
		t.Fatalf("expected P third, got %+v", got[2])
	}
}

// TestReceiverAdapterLossRecovery reproduces spec scenario 4: Config,
// KeyFrame, P1 are admitted; a loss signal suppresses P3 (P2 never
// arrives at all — the transport dropped it); KeyFrame2 restores
// admission and P4 passes.
func TestReceiverAdapterLossRecovery(t *testing.T) {
	a := NewStreamReceiverAdapter()

	a.Send([]byte("config"), wire.Video, wire.Config, 0)
	a.Send([]byte("key1"), wire.Video, wire.KeyFrame, 1)
	a.Send([]byte("p1"), wire.Video, 0, 2)
	a.LossPkt() // transport detected the gap where P2 should have been
	a.Send([]byte("p3"), wire.Video, 0, 4)
	a.Send([]byte("key2"), wire.Video, wire.KeyFrame, 5)
	a.Send([]byte("p4"), wire.Video, 0, 6)
	a.Close()

	got := recvAll(t, a, 5)
	want := []string{"config", "key1", "p1", "key2", "p4"}
	for i, w := range want {
		if string(got[i].Payload) != w {
			t.Fatalf("unit %d: got %q, want %q", i, got[i].Payload, w)
		}
	}
}

func TestReceiverAdapterDropsEmptyPayload(t *testing.T) {
	a := NewStreamReceiverAdapter()
	if !a.Send(nil, wire.Video, wire.Config, 0) {
		t.Fatalf("expected empty payload to report success")
	}
}

func TestMultiReceiverAdapterIndependentQueues(t *testing.T) {
	a := NewStreamMultiReceiverAdapter()

	a.Send([]byte("vconfig"), wire.Video, wire.Config, 0)
	a.Send([]byte("aconfig"), wire.Audio, wire.Config, 0)
	a.Send([]byte("key"), wire.Video, wire.KeyFrame, 1)
	a.Send([]byte("sample"), wire.Audio, 0, 1)
	a.Close()

	v1, ok := a.Next(wire.Video)
	if !ok || string(v1.Payload) != "vconfig" {
		t.Fatalf("expected vconfig, got %+v ok=%v", v1, ok)
	}
	v2, ok := a.Next(wire.Video)
	if !ok || string(v2.Payload) != "key" {
		t.Fatalf("expected key, got %+v ok=%v", v2, ok)
	}
	a1, ok := a.Next(wire.Audio)
	if !ok || string(a1.Payload) != "aconfig" {
		t.Fatalf("expected aconfig, got %+v ok=%v", a1, ok)
	}
	a2, ok := a.Next(wire.Audio)
	if !ok || string(a2.Payload) != "sample" {
		t.Fatalf("expected sample, got %+v ok=%v", a2, ok)
	}

	if _, ok := a.Next(wire.Video); ok {
		t.Fatalf("expected video queue closed")
	}
	if _, ok := a.Next(wire.Audio); ok {
		t.Fatalf("expected audio queue closed")
	}
}

func TestMultiReceiverAdapterLenTracksPerKindDepth(t *testing.T) {
	a := NewStreamMultiReceiverAdapter()

	a.Send([]byte("vconfig"), wire.Video, wire.Config, 0)
	a.Send([]byte("key1"), wire.Video, wire.KeyFrame, 1)
	a.Send([]byte("aconfig"), wire.Audio, wire.Config, 0)

	if got := a.Len(wire.Video); got != 2 {
		t.Fatalf("expected video len=2, got %d", got)
	}
	if got := a.Len(wire.Audio); got != 1 {
		t.Fatalf("expected audio len=1, got %d", got)
	}

	a.Next(wire.Video)
	if got := a.Len(wire.Video); got != 1 {
		t.Fatalf("expected video len=1 after one drain, got %d", got)
	}
}
