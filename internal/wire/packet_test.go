package wire

import (
	"bytes"
	"testing"
	"testing/quick"
)

func TestPackConcreteVector(t *testing.T) {
	info := Info{Kind: Video, Flags: KeyFrame, Timestamp: 0x0102030405060708}
	payload := []byte{0xAA, 0xBB}

	got := Pack(info, payload)
	want := []byte{
		0x00,
		0x00, 0x00, 0x00, 0x01,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0xAA, 0xBB,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("pack mismatch:\n got=% x\nwant=% x", got, want)
	}

	gotInfo, gotPayload, ok := Unpack(got)
	if !ok {
		t.Fatalf("unpack failed")
	}
	if gotInfo != info {
		t.Fatalf("unpack info mismatch: got=%+v want=%+v", gotInfo, info)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Fatalf("unpack payload mismatch: got=% x want=% x", gotPayload, payload)
	}
}

func TestUnpackRejectsShortData(t *testing.T) {
	for n := 0; n < headerSize; n++ {
		if _, _, ok := Unpack(make([]byte, n)); ok {
			t.Fatalf("expected ok=false for length %d", n)
		}
	}
}

func TestUnpackRejectsUnknownKind(t *testing.T) {
	data := Pack(Info{Kind: Video}, nil)
	data[0] = 2 // unknown kind byte
	if _, _, ok := Unpack(data); ok {
		t.Fatalf("expected ok=false for unknown kind byte")
	}
}

func TestUnpackDoesNotValidateFlagsOrTimestamp(t *testing.T) {
	info := Info{Kind: Audio, Flags: BufferFlag(-1), Timestamp: ^uint64(0)}
	data := Pack(info, []byte("x"))
	got, _, ok := Unpack(data)
	if !ok || got != info {
		t.Fatalf("expected flags/timestamp to round-trip unvalidated, got=%+v ok=%v", got, ok)
	}
}

func TestRoundTripProperty(t *testing.T) {
	f := func(kindBit bool, flags int32, ts uint64, payload []byte) bool {
		if len(payload) > 1<<16 {
			payload = payload[:1<<16]
		}
		kind := Video
		if kindBit {
			kind = Audio
		}
		info := Info{Kind: kind, Flags: BufferFlag(flags), Timestamp: ts}
		packed := Pack(info, payload)
		gotInfo, gotPayload, ok := Unpack(packed)
		if !ok {
			return false
		}
		if gotInfo != info {
			return false
		}
		if len(payload) == 0 && len(gotPayload) == 0 {
			return true
		}
		return bytes.Equal(gotPayload, payload)
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 500}); err != nil {
		t.Fatal(err)
	}
}
