// Package wire implements the packetization layer: framing a single encoded
// media payload with its stream-kind/flags/timestamp metadata, and parsing
// the inverse. The header is fixed-width and self-delimiting so the
// fragment layer can treat a packetized payload as opaque bytes.
package wire

import (
	"encoding/binary"
)

// StreamKind identifies which media elementary stream a packet carries.
type StreamKind uint8

const (
	Video StreamKind = 0
	Audio StreamKind = 1
)

func (k StreamKind) String() string {
	switch k {
	case Video:
		return "video"
	case Audio:
		return "audio"
	default:
		return "unknown"
	}
}

// BufferFlag is a bitmask carried alongside every packet. Only KeyFrame and
// Config drive transport-layer decisions; EndOfStream and Partial are
// passed through untouched.
type BufferFlag int32

const (
	KeyFrame    BufferFlag = 1
	Config      BufferFlag = 2
	EndOfStream BufferFlag = 4
	Partial     BufferFlag = 8
)

func (f BufferFlag) Has(bit BufferFlag) bool { return f&bit != 0 }

// headerSize is the fixed, self-delimiting packet header: 1 byte kind, 4
// bytes flags (BE), 8 bytes timestamp (BE).
const headerSize = 1 + 4 + 8

// Info is the tagged metadata carried by every Packet: StreamBufferInfo in
// spec terms.
type Info struct {
	Kind      StreamKind
	Flags     BufferFlag
	Timestamp uint64
}

// Pack prepends the 13-byte header to payload and returns the framed bytes.
// Never fails for payloads up to 2^32-14 bytes (the limit is not enforced
// here; callers operate well under it).
func Pack(info Info, payload []byte) []byte {
	out := make([]byte, headerSize+len(payload))
	out[0] = byte(info.Kind)
	binary.BigEndian.PutUint32(out[1:5], uint32(info.Flags))
	binary.BigEndian.PutUint64(out[5:13], info.Timestamp)
	copy(out[headerSize:], payload)
	return out
}

// Unpack parses the inverse of Pack. It returns ok=false when data is
// shorter than the header or the kind byte is unknown (>1); flags and
// timestamp are never validated. The returned payload aliases data.
func Unpack(data []byte) (info Info, payload []byte, ok bool) {
	if len(data) < headerSize {
		return Info{}, nil, false
	}
	kind := StreamKind(data[0])
	if kind != Video && kind != Audio {
		return Info{}, nil, false
	}
	info = Info{
		Kind:      kind,
		Flags:     BufferFlag(binary.BigEndian.Uint32(data[1:5])),
		Timestamp: binary.BigEndian.Uint64(data[5:13]),
	}
	return info, data[headerSize:], true
}
