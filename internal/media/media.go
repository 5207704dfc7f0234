// Package media defines the narrow interfaces the sender and receiver
// pipelines use to talk to capture, codec, and render stages. All four are
// external collaborators: this module never implements a capture backend
// or a codec, only the contract the pipeline drives them through.
package media

import "context"

// Frame is one raw capture frame (video) or audio chunk handed from a
// Source to an Encoder, or from a Decoder to a Renderer.
type Frame struct {
	Data      []byte
	Timestamp uint64
}

// Source produces raw frames from a capture backend (screen, camera,
// microphone). Implementations are provided by the embedding application;
// this module only ever calls Read in a loop until it returns an error.
type Source interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// EncodedUnit is one output unit from an Encoder: a payload plus the
// stream-transport metadata the sender adapter needs to apply its
// config/keyframe bookkeeping.
type EncodedUnit struct {
	Payload   []byte
	KeyFrame  bool
	Config    bool
	Timestamp uint64
}

// Encoder turns raw frames into a stream of EncodedUnits. Encode may
// buffer internally (typical of B-frame-capable codecs); Read drains
// whatever the last Encode call produced, returning ok=false when there is
// nothing pending.
type Encoder interface {
	Encode(frame Frame) error
	Read() (unit EncodedUnit, ok bool)
	Close() error
}

// Decoder is the receive-side inverse of Encoder.
type Decoder interface {
	Decode(unit EncodedUnit) error
	Read() (frame Frame, ok bool)
	Close() error
}

// Renderer consumes decoded frames for display or playback.
type Renderer interface {
	Render(frame Frame) error
	Close() error
}

// VideoOptions configures a video Encoder/Decoder.
type VideoOptions struct {
	Width            int
	Height           int
	Framerate        int
	BitRate          int
	KeyFrameInterval int
}

// AudioOptions configures an audio Encoder/Decoder.
type AudioOptions struct {
	SampleRate int
	Channels   int
	BitRate    int
}
