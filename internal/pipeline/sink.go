// Package pipeline wires capture/encode/transport together on the sender
// side and transport/decode/render together on the receiver side: the
// glue described in spec as the Sender and Receiver Pipelines, built on
// top of internal/adapter, internal/transport/srt,
// internal/transport/multicast, internal/fragment, internal/wire and
// internal/signal.
package pipeline

import "github.com/mycrl/mirror/internal/media"

// Sink receives raw frames as they arrive — captured on the sender side,
// decoded on the receiver side — and is notified exactly once when its
// owning pipeline closes, whatever the cause (capture/encode/decode
// failure, transport failure, or an explicit Close call). Returning false
// from Video or Audio is itself a close trigger, mirroring the upstream
// callback's "stop if the sink says so" contract.
type Sink interface {
	Video(frame media.Frame) bool
	Audio(frame media.Frame) bool
	Close()
}
