// Package adapter implements the queues sitting between encoder and
// transport (StreamSenderAdapter) and between transport and decoder
// (StreamReceiverAdapter / StreamMultiReceiverAdapter). These are the
// component that lets a receiver join mid-stream and still decode, and
// that recovers cleanly after a detected loss.
package adapter

import (
	"sync/atomic"

	"github.com/mycrl/mirror/internal/wire"
)

// audioSpriteInterval is how many audio data packets elapse between
// periodic Config re-injections (the audio analogue of the video
// Config-before-KeyFrame rule, since audio has no keyframe concept).
const audioSpriteInterval = 30

// Unit is one item flowing through an adapter queue: a packetized payload
// plus the StreamBufferInfo triple the receiving side needs.
type Unit struct {
	Payload   []byte
	Kind      wire.StreamKind
	Flags     wire.BufferFlag
	Timestamp uint64
}

// StreamSenderAdapter is the single-producer outbound queue from encoder
// to transport. It remembers the most recent video and audio Config
// payloads so a keyframe is always preceded by its config on the wire,
// and so a periodic Config re-injection bounds how long a late-joining
// audio subscriber waits to become decodable.
type StreamSenderAdapter struct {
	videoConfig atomic.Pointer[[]byte]
	audioConfig atomic.Pointer[[]byte]
	audioCount  atomic.Int32
	multicast   atomic.Bool

	queue *fifo[Unit]
}

// NewStreamSenderAdapter creates an empty, open adapter. multicast is the
// initial transport selector value the sender pipeline's worker consults
// per drained item; it may be flipped at runtime via SetMulticast.
func NewStreamSenderAdapter(multicast bool) *StreamSenderAdapter {
	a := &StreamSenderAdapter{queue: newFIFO[Unit]()}
	a.multicast.Store(multicast)
	return a
}

// GetMulticast reports the current transport selection.
func (a *StreamSenderAdapter) GetMulticast() bool { return a.multicast.Load() }

// SetMulticast flips the transport selection read by the sender pipeline's
// worker before its next drained item; takes effect without allocation.
func (a *StreamSenderAdapter) SetMulticast(multicast bool) { a.multicast.Store(multicast) }

// Send enqueues buf under the config-memory/keyframe-prefix/audio-sprinkle
// algorithm. An empty payload is dropped and reported as success. Returns
// false iff the queue has already been closed.
func (a *StreamSenderAdapter) Send(buf []byte, info wire.Info) bool {
	if len(buf) == 0 {
		return true
	}

	switch info.Kind {
	case wire.Video:
		return a.sendVideo(buf, info)
	default:
		return a.sendAudio(buf, info)
	}
}

func (a *StreamSenderAdapter) sendVideo(buf []byte, info wire.Info) bool {
	if info.Flags.Has(wire.Config) {
		cfg := append([]byte(nil), buf...)
		a.videoConfig.Store(&cfg)
	}

	if info.Flags.Has(wire.KeyFrame) {
		if cfg := a.videoConfig.Load(); cfg != nil {
			if !a.queue.Send(Unit{
				Payload:   *cfg,
				Kind:      wire.Video,
				Flags:     wire.Config,
				Timestamp: info.Timestamp,
			}) {
				return false
			}
		}
	}

	return a.queue.Send(Unit{Payload: buf, Kind: wire.Video, Flags: info.Flags, Timestamp: info.Timestamp})
}

// sendAudio keeps the periodic re-injection counter driven only by data
// packets: a Config send updates the remembered config and is enqueued
// immediately, without advancing or resetting the counter. This is the
// ordering that produces the prescribed Config, D1..D30, Config, D31..D60
// cadence — a Config landing mid-cycle must not shift it.
func (a *StreamSenderAdapter) sendAudio(buf []byte, info wire.Info) bool {
	if info.Flags.Has(wire.Config) {
		cfg := append([]byte(nil), buf...)
		a.audioConfig.Store(&cfg)
		return a.queue.Send(Unit{Payload: buf, Kind: wire.Audio, Flags: info.Flags, Timestamp: info.Timestamp})
	}

	if !a.queue.Send(Unit{Payload: buf, Kind: wire.Audio, Flags: info.Flags, Timestamp: info.Timestamp}) {
		return false
	}

	if a.audioCount.Add(1) == audioSpriteInterval {
		a.audioCount.Store(0)
		if cfg := a.audioConfig.Load(); cfg != nil {
			if !a.queue.Send(Unit{
				Payload:   *cfg,
				Kind:      wire.Audio,
				Flags:     wire.Config,
				Timestamp: info.Timestamp,
			}) {
				return false
			}
		}
	}

	return true
}

// Next blocks for the next queued unit; ok is false once the adapter is
// closed and drained.
func (a *StreamSenderAdapter) Next() (Unit, bool) { return a.queue.Recv() }

// Len reports the number of units currently queued, for depth metrics.
func (a *StreamSenderAdapter) Len() int { return a.queue.Len() }

// Close is idempotent and wakes a blocked Next with ok=false once any
// already-queued units have drained.
func (a *StreamSenderAdapter) Close() { a.queue.Close() }
