// Package signal implements the TCP rendezvous protocol between mirror
// senders, receivers, and the relay: the Start/Stop messages a publisher
// uses to announce its multicast port, and the length-prefixed wire codec
// for them.
package signal

import (
	"encoding/binary"

	rerrors "github.com/mycrl/mirror/internal/errors"
)

// Tag identifies which signal variant a decoded message carries.
type Tag uint8

const (
	Start Tag = 0
	Stop  Tag = 1
)

func (t Tag) String() string {
	switch t {
	case Start:
		return "start"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// Signal is the tagged union carried on the signal channel: Start{id,
// port} announces a publisher's multicast port, Stop{id} retires it. Port
// is meaningful only when Tag == Start.
type Signal struct {
	Tag  Tag
	ID   uint32
	Port uint16
}

// lengthHeaderSize is the 2-byte big-endian length prefix.
const lengthHeaderSize = 2

// Encode serializes a Signal as `length(2,BE) | tag(1) | body`. Start's
// body is `id(4,BE) | port(2,BE)`; Stop's body is `id(4,BE)`.
func (s Signal) Encode() []byte {
	var body []byte
	switch s.Tag {
	case Start:
		body = make([]byte, 1+4+2)
		body[0] = byte(Start)
		binary.BigEndian.PutUint32(body[1:5], s.ID)
		binary.BigEndian.PutUint16(body[5:7], s.Port)
	case Stop:
		body = make([]byte, 1+4)
		body[0] = byte(Stop)
		binary.BigEndian.PutUint32(body[1:5], s.ID)
	default:
		return nil
	}

	out := make([]byte, lengthHeaderSize+len(body))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(body)))
	copy(out[lengthHeaderSize:], body)
	return out
}

// DecodeOne attempts to decode exactly one signal from the front of buf.
// consumed is the number of bytes the message occupied, valid only when
// complete is true. complete is false when buf does not yet hold a full
// signal (the caller should wait for more bytes — the wire tolerates
// partial reads). err is non-nil when a complete frame was present but
// its tag or body length was malformed; consumed is still valid so the
// caller can skip past it and resynchronize.
func DecodeOne(buf []byte) (consumed int, sig Signal, complete bool, err error) {
	if len(buf) < lengthHeaderSize {
		return 0, Signal{}, false, nil
	}

	bodyLen := int(binary.BigEndian.Uint16(buf[0:2]))
	total := lengthHeaderSize + bodyLen
	if len(buf) < total {
		return 0, Signal{}, false, nil
	}

	body := buf[lengthHeaderSize:total]
	if len(body) < 1 {
		return total, Signal{}, true, rerrors.NewProtocolError("signal.decode", nil)
	}

	switch Tag(body[0]) {
	case Start:
		if len(body) != 1+4+2 {
			return total, Signal{}, true, rerrors.NewProtocolError("signal.decode", nil)
		}
		return total, Signal{
			Tag:  Start,
			ID:   binary.BigEndian.Uint32(body[1:5]),
			Port: binary.BigEndian.Uint16(body[5:7]),
		}, true, nil
	case Stop:
		if len(body) != 1+4 {
			return total, Signal{}, true, rerrors.NewProtocolError("signal.decode", nil)
		}
		return total, Signal{Tag: Stop, ID: binary.BigEndian.Uint32(body[1:5])}, true, nil
	default:
		return total, Signal{}, true, rerrors.NewProtocolError("signal.decode", nil)
	}
}

// Decoder accumulates bytes from a stream transport (TCP) and extracts as
// many complete signals as are available on each Feed call. It is
// stateful so the caller can hand it arbitrarily-sized reads.
type Decoder struct {
	buf []byte
}

// NewDecoder creates an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends data to the internal buffer and extracts every complete
// signal now available. Malformed frames are skipped (not returned) but
// still advance the buffer so a single bad frame cannot wedge the stream.
func (d *Decoder) Feed(data []byte) []Signal {
	d.buf = append(d.buf, data...)

	var out []Signal
	for {
		consumed, sig, complete, err := DecodeOne(d.buf)
		if !complete {
			break
		}
		d.buf = d.buf[consumed:]
		if err == nil {
			out = append(out, sig)
		}
	}
	return out
}
