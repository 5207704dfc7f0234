package adapter

import (
	"sync"

	"github.com/mycrl/mirror/internal/wire"
)

// ReceiverAdapter is satisfied by both StreamReceiverAdapter and
// StreamMultiReceiverAdapter so the receiver pipeline's SRT/multicast
// read loops can treat either one opaquely.
type ReceiverAdapter interface {
	Close()
	LossPkt()
	Send(buf []byte, kind wire.StreamKind, flags wire.BufferFlag, timestamp uint64) bool
}

// PacketFilter is the robustness core shared by both receiver adapter
// variants: it guarantees the decoder never sees a packet before its
// Config, drops duplicate Configs, and — for video — suppresses output
// after a detected loss until the next KeyFrame restores a valid
// reference frame. It is called concurrently from both the SRT and
// multicast read loops that can feed one adapter, hence the mutex.
type PacketFilter struct {
	mu          sync.Mutex
	initialized bool
	readable    bool
}

// Filter reports whether a packet carrying flags should be admitted to
// the queue. isVideo selects whether the KeyFrame/readable gate applies;
// audio has no keyframe concept and always passes once initialized.
func (f *PacketFilter) Filter(flags wire.BufferFlag, isVideo bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.initialized {
		if !flags.Has(wire.Config) {
			return false
		}
		f.initialized = true
		return true
	}

	if flags.Has(wire.Config) {
		return false
	}

	if isVideo && !f.readable {
		if !flags.Has(wire.KeyFrame) {
			return false
		}
		f.readable = true
	}

	return true
}

// Loss marks the stream unreadable: subsequent video packets are dropped
// until the next KeyFrame. Never applied to audio.
func (f *PacketFilter) Loss() {
	f.mu.Lock()
	f.readable = false
	f.mu.Unlock()
}

// StreamReceiverAdapter is the single-queue inbound adapter: video and
// audio share one ordered queue, for embedding contexts that decode both
// kinds on one thread.
type StreamReceiverAdapter struct {
	queue       *fifo[Unit]
	videoFilter PacketFilter
	audioFilter PacketFilter
}

// NewStreamReceiverAdapter creates an empty, open adapter.
func NewStreamReceiverAdapter() *StreamReceiverAdapter {
	return &StreamReceiverAdapter{queue: newFIFO[Unit]()}
}

// Next blocks for the next admitted unit; ok is false once closed and
// drained.
func (a *StreamReceiverAdapter) Next() (Unit, bool) { return a.queue.Recv() }

// Close is idempotent.
func (a *StreamReceiverAdapter) Close() { a.queue.Close() }

// LossPkt records a detected transport-level gap.
func (a *StreamReceiverAdapter) LossPkt() { a.videoFilter.Loss() }

// Send applies the filter and enqueues on accept. An empty payload is
// dropped and reported as success, matching the sender side.
func (a *StreamReceiverAdapter) Send(buf []byte, kind wire.StreamKind, flags wire.BufferFlag, timestamp uint64) bool {
	if len(buf) == 0 {
		return true
	}

	var admit bool
	switch kind {
	case wire.Video:
		admit = a.videoFilter.Filter(flags, true)
	default:
		admit = a.audioFilter.Filter(flags, false)
	}

	if !admit {
		return true
	}
	return a.queue.Send(Unit{Payload: buf, Kind: kind, Flags: flags, Timestamp: timestamp})
}

// StreamMultiReceiverAdapter is the split-queue inbound adapter: video and
// audio are independent queues, for contexts where each decodes on its own
// thread.
type StreamMultiReceiverAdapter struct {
	videoQueue  *fifo[Unit]
	audioQueue  *fifo[Unit]
	videoFilter PacketFilter
	audioFilter PacketFilter
}

// NewStreamMultiReceiverAdapter creates an empty, open adapter.
func NewStreamMultiReceiverAdapter() *StreamMultiReceiverAdapter {
	return &StreamMultiReceiverAdapter{
		videoQueue: newFIFO[Unit](),
		audioQueue: newFIFO[Unit](),
	}
}

// Next blocks for the next admitted unit of the given kind.
func (a *StreamMultiReceiverAdapter) Next(kind wire.StreamKind) (Unit, bool) {
	if kind == wire.Video {
		return a.videoQueue.Recv()
	}
	return a.audioQueue.Recv()
}

// Len reports the given kind's current queue depth, for depth metrics.
func (a *StreamMultiReceiverAdapter) Len(kind wire.StreamKind) int {
	if kind == wire.Video {
		return a.videoQueue.Len()
	}
	return a.audioQueue.Len()
}

// Close closes both queues.
func (a *StreamMultiReceiverAdapter) Close() {
	a.videoQueue.Close()
	a.audioQueue.Close()
}

// LossPkt records a detected transport-level gap.
func (a *StreamMultiReceiverAdapter) LossPkt() { a.videoFilter.Loss() }

// Send applies the filter and enqueues on the matching kind's queue.
func (a *StreamMultiReceiverAdapter) Send(buf []byte, kind wire.StreamKind, flags wire.BufferFlag, timestamp uint64) bool {
	if len(buf) == 0 {
		return true
	}

	switch kind {
	case wire.Video:
		if a.videoFilter.Filter(flags, true) {
			return a.videoQueue.Send(Unit{Payload: buf, Kind: kind, Flags: flags, Timestamp: timestamp})
		}
	default:
		if a.audioFilter.Filter(flags, false) {
			return a.audioQueue.Send(Unit{Payload: buf, Kind: kind, Flags: flags, Timestamp: timestamp})
		}
	}
	return true
}

var (
	_ ReceiverAdapter = (*StreamReceiverAdapter)(nil)
	_ ReceiverAdapter = (*StreamMultiReceiverAdapter)(nil)
)
