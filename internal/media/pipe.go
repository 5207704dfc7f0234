package media

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// Real capture, codec, and render backends are external collaborators (see
// package doc). pipe.go is the one concrete Source/Encoder/Decoder/Sink this
// module ships: a length-prefixed elementary-stream framing over an
// io.Reader/io.Writer, letting cmd/mirror-sender and cmd/mirror-receiver run
// end to end against a real capture/encode/decode/render tool connected by a
// Unix pipe, without this module ever implementing one itself.
//
// Frame wire layout, all multi-byte fields big-endian:
//
//	[1 byte flags][8 bytes timestamp][4 bytes payload length][payload]
const pipeHeaderSize = 1 + 8 + 4

// pipeFlag mirrors wire.BufferFlag's KeyFrame/Config bits for the subset a
// passthrough pipe frame carries; kept as its own type so this package
// doesn't need to import internal/wire for two bits.
type pipeFlag uint8

const (
	pipeKeyFrame pipeFlag = 1 << 0
	pipeConfig   pipeFlag = 1 << 1
)

// PipeSource reads already-encoded elementary-stream units framed per the
// layout above from r, one per Read call. The upstream process (a real
// capture+encode tool) is responsible for producing valid frames; this type
// only demuxes them.
type PipeSource struct {
	r      *bufio.Reader
	closer io.Closer
}

// NewPipeSource wraps r. If r also implements io.Closer, Close closes it.
func NewPipeSource(r io.Reader) *PipeSource {
	closer, _ := r.(io.Closer)
	return &PipeSource{r: bufio.NewReader(r), closer: closer}
}

// Read blocks until one frame is available, ctx is done, or the stream ends.
func (p *PipeSource) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	header := make([]byte, pipeHeaderSize)
	if _, err := io.ReadFull(p.r, header); err != nil {
		return Frame{}, fmt.Errorf("pipe source: read header: %w", err)
	}

	flags := pipeFlag(header[0])
	timestamp := binary.BigEndian.Uint64(header[1:9])
	length := binary.BigEndian.Uint32(header[9:13])

	payload := make([]byte, length+1)
	payload[0] = byte(flags)
	if _, err := io.ReadFull(p.r, payload[1:]); err != nil {
		return Frame{}, fmt.Errorf("pipe source: read payload: %w", err)
	}

	return Frame{Data: payload, Timestamp: timestamp}, nil
}

// Close closes the underlying reader if it is an io.Closer.
func (p *PipeSource) Close() error {
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

// PassthroughEncoder treats frames from PipeSource as already encoded: the
// leading byte PipeSource prepended carries the KeyFrame/Config flags, and
// the rest of Data is the encoded payload. It exists so the sender pipeline
// can drive a real elementary-stream source through the same
// capture->encode->send loop it uses for an in-process encoder, without
// this module performing any actual encoding.
type PassthroughEncoder struct {
	mu      sync.Mutex
	pending []EncodedUnit
}

// NewPassthroughEncoder returns a ready PassthroughEncoder.
func NewPassthroughEncoder() *PassthroughEncoder { return &PassthroughEncoder{} }

// Encode splits frame.Data's leading flags byte from its payload and queues
// the result as one EncodedUnit.
func (e *PassthroughEncoder) Encode(frame Frame) error {
	if len(frame.Data) == 0 {
		return fmt.Errorf("passthrough encoder: empty frame")
	}

	flags := pipeFlag(frame.Data[0])
	unit := EncodedUnit{
		Payload:   frame.Data[1:],
		KeyFrame:  flags&pipeKeyFrame != 0,
		Config:    flags&pipeConfig != 0,
		Timestamp: frame.Timestamp,
	}

	e.mu.Lock()
	e.pending = append(e.pending, unit)
	e.mu.Unlock()
	return nil
}

// Read drains one queued unit.
func (e *PassthroughEncoder) Read() (EncodedUnit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) == 0 {
		return EncodedUnit{}, false
	}
	unit := e.pending[0]
	e.pending = e.pending[1:]
	return unit, true
}

// Close is a no-op; PassthroughEncoder holds no resources of its own.
func (e *PassthroughEncoder) Close() error { return nil }

// PassthroughDecoder is the receive-side inverse of PassthroughEncoder: it
// re-attaches a flags byte to each EncodedUnit's payload and hands the
// result to the sink unchanged, leaving any real decoding to whatever reads
// the far end of the pipe (e.g. a player process).
type PassthroughDecoder struct {
	mu      sync.Mutex
	pending []Frame
}

// NewPassthroughDecoder returns a ready PassthroughDecoder.
func NewPassthroughDecoder() *PassthroughDecoder { return &PassthroughDecoder{} }

// Decode re-frames unit as a Frame with its flags byte restored.
func (d *PassthroughDecoder) Decode(unit EncodedUnit) error {
	var flags pipeFlag
	if unit.KeyFrame {
		flags |= pipeKeyFrame
	}
	if unit.Config {
		flags |= pipeConfig
	}

	data := make([]byte, len(unit.Payload)+1)
	data[0] = byte(flags)
	copy(data[1:], unit.Payload)

	d.mu.Lock()
	d.pending = append(d.pending, Frame{Data: data, Timestamp: unit.Timestamp})
	d.mu.Unlock()
	return nil
}

// Read drains one queued frame.
func (d *PassthroughDecoder) Read() (Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return Frame{}, false
	}
	frame := d.pending[0]
	d.pending = d.pending[1:]
	return frame, true
}

// Close is a no-op; PassthroughDecoder holds no resources of its own.
func (d *PassthroughDecoder) Close() error { return nil }

// PipeSink writes frames back out in the same length-prefixed layout
// PipeSource reads, for chaining cmd/mirror-sender's raw capture callback or
// cmd/mirror-receiver's decoded output into another process. A write error
// both returns from Video/Audio as false (the pipeline-wide close trigger)
// and is recorded for the caller via Err.
type PipeSink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	err    error
}

// NewPipeSink wraps w. If w also implements io.Closer, Close closes it.
func NewPipeSink(w io.Writer) *PipeSink {
	closer, _ := w.(io.Closer)
	return &PipeSink{w: w, closer: closer}
}

func (s *PipeSink) write(frame Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return false
	}
	if len(frame.Data) == 0 {
		return true
	}

	var flags pipeFlag
	if len(frame.Data) > 0 {
		flags = pipeFlag(frame.Data[0])
	}

	header := make([]byte, pipeHeaderSize)
	header[0] = byte(flags)
	binary.BigEndian.PutUint64(header[1:9], frame.Timestamp)
	binary.BigEndian.PutUint32(header[9:13], uint32(len(frame.Data)-1))

	if _, err := s.w.Write(header); err != nil {
		s.err = fmt.Errorf("pipe sink: write header: %w", err)
		return false
	}
	if _, err := s.w.Write(frame.Data[1:]); err != nil {
		s.err = fmt.Errorf("pipe sink: write payload: %w", err)
		return false
	}
	return true
}

// Video writes frame, returning false (closing the owning pipeline) on a
// write failure.
func (s *PipeSink) Video(frame Frame) bool { return s.write(frame) }

// Audio writes frame, returning false (closing the owning pipeline) on a
// write failure.
func (s *PipeSink) Audio(frame Frame) bool { return s.write(frame) }

// Close closes the underlying writer if it is an io.Closer.
func (s *PipeSink) Close() {
	if s.closer != nil {
		s.closer.Close()
	}
}

// Err reports the first write error encountered, if any.
func (s *PipeSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
