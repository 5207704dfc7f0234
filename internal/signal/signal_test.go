package signal

import (
	"testing"
)

func TestEncodeDecodeStart(t *testing.T) {
	sig := Signal{Tag: Start, ID: 7, Port: 51234}
	wire := sig.Encode()

	consumed, got, complete, err := DecodeOne(wire)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !complete {
		t.Fatalf("expected complete=true")
	}
	if consumed != len(wire) {
		t.Fatalf("expected consumed=%d, got %d", len(wire), consumed)
	}
	if got != sig {
		t.Fatalf("round-trip mismatch: got=%+v want=%+v", got, sig)
	}
}

func TestEncodeDecodeStop(t *testing.T) {
	sig := Signal{Tag: Stop, ID: 42}
	wire := sig.Encode()

	consumed, got, complete, err := DecodeOne(wire)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !complete || consumed != len(wire) {
		t.Fatalf("expected full decode, got complete=%v consumed=%d", complete, consumed)
	}
	if got != sig {
		t.Fatalf("round-trip mismatch: got=%+v want=%+v", got, sig)
	}
}

func TestDecodeOneTreatsShortBufferAsIncomplete(t *testing.T) {
	sig := Signal{Tag: Start, ID: 1, Port: 2}
	wire := sig.Encode()

	for n := 0; n < len(wire); n++ {
		_, _, complete, err := DecodeOne(wire[:n])
		if complete {
			t.Fatalf("expected incomplete at length %d", n)
		}
		if err != nil {
			t.Fatalf("expected no error for incomplete buffer, got %v", err)
		}
	}
}

func TestDecoderFeedAcrossPartialReads(t *testing.T) {
	sig := Signal{Tag: Start, ID: 99, Port: 1000}
	wire := sig.Encode()

	d := NewDecoder()

	// Dribble the bytes in one at a time.
	var got []Signal
	for i := range wire {
		got = append(got, d.Feed(wire[i:i+1])...)
	}

	if len(got) != 1 {
		t.Fatalf("expected exactly one decoded signal, got %d", len(got))
	}
	if got[0] != sig {
		t.Fatalf("decoded signal mismatch: got=%+v want=%+v", got[0], sig)
	}
}

func TestDecoderFeedMultipleSignalsInOneChunk(t *testing.T) {
	s1 := Signal{Tag: Start, ID: 1, Port: 100}
	s2 := Signal{Tag: Stop, ID: 1}
	s3 := Signal{Tag: Start, ID: 2, Port: 200}

	combined := append(append(s1.Encode(), s2.Encode()...), s3.Encode()...)

	d := NewDecoder()
	got := d.Feed(combined)

	want := []Signal{s1, s2, s3}
	if len(got) != len(want) {
		t.Fatalf("expected %d signals, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("signal %d mismatch: got=%+v want=%+v", i, got[i], want[i])
		}
	}
}

func TestDecodeOneRejectsUnknownTag(t *testing.T) {
	body := []byte{0xFF, 0, 0, 0, 1}
	wire := make([]byte, 2+len(body))
	wire[0] = 0
	wire[1] = byte(len(body))
	copy(wire[2:], body)

	consumed, _, complete, err := DecodeOne(wire)
	if !complete {
		t.Fatalf("expected complete=true for a full-length malformed frame")
	}
	if consumed != len(wire) {
		t.Fatalf("expected consumed=%d even for malformed frame, got %d", len(wire), consumed)
	}
	if err == nil {
		t.Fatalf("expected an error for unknown tag")
	}
}

func TestDecoderSkipsMalformedFrameAndResyncs(t *testing.T) {
	bad := make([]byte, 2+5)
	bad[0] = 0
	bad[1] = 5
	bad[2] = 0xFF // unknown tag

	good := Signal{Tag: Stop, ID: 55}

	d := NewDecoder()
	got := d.Feed(append(bad, good.Encode()...))

	if len(got) != 1 {
		t.Fatalf("expected exactly one valid signal after skipping malformed frame, got %d", len(got))
	}
	if got[0] != good {
		t.Fatalf("expected %+v, got %+v", good, got[0])
	}
}
