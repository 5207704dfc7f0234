package media

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBuildOpusIdentificationHeaderLayout(t *testing.T) {
	hdr := BuildOpusIdentificationHeader(2, 48000)

	if len(hdr) != OpusHeaderSize {
		t.Fatalf("expected length %d, got %d", OpusHeaderSize, len(hdr))
	}
	if !bytes.Equal(hdr[0:8], []byte("AOPUSHDR")) {
		t.Fatalf("unexpected AOPUSHDR tag: %q", hdr[0:8])
	}
	if hdr[8] != 0x13 {
		t.Fatalf("expected length tag byte 0x13, got %#x", hdr[8])
	}
	if !bytes.Equal(hdr[16:24], []byte("OpusHead")) {
		t.Fatalf("unexpected OpusHead tag: %q", hdr[16:24])
	}
	if hdr[24] != 1 {
		t.Fatalf("expected version 1, got %d", hdr[24])
	}
	if hdr[25] != 2 {
		t.Fatalf("expected channel count 2, got %d", hdr[25])
	}
	if got := binary.LittleEndian.Uint32(hdr[28:32]); got != 48000 {
		t.Fatalf("expected sample rate 48000, got %d", got)
	}
	if hdr[34] != 0 {
		t.Fatalf("expected mapping_family 0, got %d", hdr[34])
	}
	if !bytes.Equal(hdr[35:43], []byte("AOPUSDLY")) {
		t.Fatalf("unexpected AOPUSDLY tag: %q", hdr[35:43])
	}
	if !bytes.Equal(hdr[59:67], []byte("AOPUSPRL")) {
		t.Fatalf("unexpected AOPUSPRL tag: %q", hdr[59:67])
	}
}

func TestBuildOpusIdentificationHeaderVariesWithParams(t *testing.T) {
	mono := BuildOpusIdentificationHeader(1, 16000)
	stereo := BuildOpusIdentificationHeader(2, 48000)
	if bytes.Equal(mono, stereo) {
		t.Fatalf("expected different params to produce different headers")
	}
}
