package srt

import "testing"

func TestStreamInfoEncodePublisher(t *testing.T) {
	info := StreamInfo{Kind: Publisher, ID: 7, Port: 51234, HasPort: true}
	got := info.Encode()
	want := "id=7;kind=0;port=51234"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestStreamInfoEncodeSubscriberOmitsPort(t *testing.T) {
	info := StreamInfo{Kind: Subscriber, ID: 7}
	got := info.Encode()
	want := "id=7;kind=1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestStreamInfoRoundTrip(t *testing.T) {
	info := StreamInfo{Kind: Publisher, ID: 42, Port: 9000, HasPort: true}
	parsed, err := ParseStreamInfo(info.Encode())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != info {
		t.Fatalf("round-trip mismatch: got=%+v want=%+v", parsed, info)
	}
}

func TestParseStreamInfoSubscriberHasNoPort(t *testing.T) {
	parsed, err := ParseStreamInfo("id=7;kind=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.HasPort {
		t.Fatalf("expected HasPort=false for a subscriber STREAMID")
	}
	if parsed.Kind != Subscriber || parsed.ID != 7 {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}
}

func TestParseStreamInfoRejectsMalformedID(t *testing.T) {
	if _, err := ParseStreamInfo("id=notanumber;kind=0"); err == nil {
		t.Fatalf("expected an error for malformed id")
	}
}

func TestParseStreamInfoRejectsUnknownKind(t *testing.T) {
	if _, err := ParseStreamInfo("id=1;kind=9"); err == nil {
		t.Fatalf("expected an error for unknown kind value")
	}
}

func TestParseStreamInfoIgnoresUnknownKeys(t *testing.T) {
	parsed, err := ParseStreamInfo("id=3;kind=0;port=100;extra=ignored")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.ID != 3 || parsed.Kind != Publisher || parsed.Port != 100 {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}
}

func TestDescriptorMaxPacketSizeUsesExplicitMTU(t *testing.T) {
	d := Descriptor{MTU: 1456}
	if got := d.MaxPacketSize(); got != 1456 {
		t.Fatalf("expected 1456, got %d", got)
	}
}
