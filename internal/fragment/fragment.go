// Package fragment adapts variable-length packetized payloads to the
// fixed-MTU send unit of a transport. It implements the wire-level
// fragment header shared by both the SRT and multicast paths (each path
// runs its own independent sequence counter, per spec).
package fragment

import (
	"encoding/binary"
	"sync"

	rerrors "github.com/mycrl/mirror/internal/errors"
)

// HeaderSize is the fixed fragment header: 8-byte BE sequence, 1-byte
// terminator flag (0 = more fragments follow, 1 = last fragment).
const HeaderSize = 8 + 1

// encodeHeader writes a fragment header into dst[:HeaderSize].
func encodeHeader(dst []byte, sequence uint64, isLast bool) {
	binary.BigEndian.PutUint64(dst[0:8], sequence)
	if isLast {
		dst[8] = 1
	} else {
		dst[8] = 0
	}
}

// Encoder splits a packetized payload into HeaderSize+chunkSize datagrams,
// assigning each a strictly increasing sequence number. The sequence is
// per-Encoder (i.e. per transport connection), starts at 0, and wraps at
// math.MaxUint64 — a non-issue at realistic bit rates.
type Encoder struct {
	chunkSize int
	mu        sync.Mutex
	sequence  uint64
}

// NewEncoder creates an Encoder that splits payloads into chunks of at
// most chunkSize bytes. chunkSize must be >= 1.
func NewEncoder(chunkSize int) *Encoder {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &Encoder{chunkSize: chunkSize}
}

// Encode splits payload into one or more wire-ready fragment datagrams, in
// order. A zero-length payload still yields exactly one (empty) fragment
// marked last, so the receiver observes a defined sequence number for it.
func (e *Encoder) Encode(payload []byte) [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := len(payload)
	n := (total + e.chunkSize - 1) / e.chunkSize
	if n == 0 {
		n = 1
	}

	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		start := i * e.chunkSize
		end := start + e.chunkSize
		if end > total {
			end = total
		}
		isLast := i == n-1

		frag := make([]byte, HeaderSize+(end-start))
		encodeHeader(frag, e.sequence, isLast)
		copy(frag[HeaderSize:], payload[start:end])
		out = append(out, frag)

		e.sequence++ // wraps at u64::MAX per spec
	}
	return out
}

// Decoder reassembles fragments received (in order) on one transport path.
// It is not concurrency-safe for interleaved calls from multiple goroutines
// — exactly one reader drives the read loop per transport socket.
type Decoder struct {
	expected  uint64
	buffer    []byte
	lossCount uint64
}

// NewDecoder creates a Decoder with expected sequence 0.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// LossCount returns the number of sequence gaps observed so far.
func (d *Decoder) LossCount() uint64 { return d.lossCount }

// Decode consumes one wire datagram. It returns ok=true exactly when the
// datagram completed a message (its IsLast fragment arrived without a
// gap), in which case sequence is the wire sequence of that last fragment
// and reassembled is the concatenated payload. A sequence gap discards any
// in-progress buffer, bumps the loss counter, and returns ok=false — the
// caller is expected to treat that as a loss signal (e.g. receiver
// adapter's loss_pkt).
func (d *Decoder) Decode(data []byte) (sequence uint64, reassembled []byte, ok bool, err error) {
	if len(data) < HeaderSize {
		return 0, nil, false, rerrors.NewFragmentError("fragment.decode", nil)
	}

	seq := binary.BigEndian.Uint64(data[0:8])
	isLast := data[8] == 1
	chunk := data[HeaderSize:]

	if seq != d.expected {
		d.buffer = nil
		d.expected = seq + 1
		d.lossCount++
		return 0, nil, false, nil
	}

	d.buffer = append(d.buffer, chunk...)
	d.expected = seq + 1

	if !isLast {
		return 0, nil, false, nil
	}

	out := d.buffer
	d.buffer = nil
	return seq, out, true, nil
}
