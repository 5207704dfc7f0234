package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mycrl/mirror/internal/adapter"
	"github.com/mycrl/mirror/internal/bufpool"
	"github.com/mycrl/mirror/internal/fragment"
	"github.com/mycrl/mirror/internal/logger"
	"github.com/mycrl/mirror/internal/media"
	"github.com/mycrl/mirror/internal/metrics"
	"github.com/mycrl/mirror/internal/signal"
	"github.com/mycrl/mirror/internal/transport/multicast"
	"github.com/mycrl/mirror/internal/transport/srt"
	"github.com/mycrl/mirror/internal/wire"
)

// srtReadBufferSize covers one SRT payload unit; fragments never approach
// this size in practice (they're bounded by the negotiated MTU).
const srtReadBufferSize = 9000

// ReceiverDescriptor configures one inbound stream. Video and Audio are
// both optional decoders; when both are present they run on independent
// decode threads fed by independent adapter queues (the split variant),
// matching spec's "one or two decoder threads" note.
type ReceiverDescriptor struct {
	Video media.Decoder
	Audio media.Decoder
}

// Receiver subscribes to a publisher's SRT and (once its port is known)
// multicast streams, reassembles and unpacks each, feeds the matching
// decoder, and forwards decoded frames to the sink.
type Receiver struct {
	id      uint32
	adapter *adapter.StreamMultiReceiverAdapter
	srt     *srt.Socket
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Registry
	channel string

	mcastMu sync.Mutex
	mcast   *multicast.Receiver

	sigBroker  *signal.Broker
	sigIndex   uint32
	sigPending bool

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// CreateReceiver opens an SRT socket announcing itself as the subscriber
// for id, resolves (immediately or via the signal broker) the publisher's
// multicast port, and starts the read and decode loops described by desc.
func (t *Transport) CreateReceiver(id uint32, desc ReceiverDescriptor, sink Sink) (*Receiver, error) {
	streamInfo := srt.StreamInfo{Kind: srt.Subscriber, ID: id}
	srtDesc := t.options.srtDescriptor(streamInfo.Encode())

	dialCtx, cancelDial := context.WithTimeout(context.Background(), connectTimeout)
	defer cancelDial()

	sock, err := srt.Connect(dialCtx, t.options.Server, srtDesc)
	if err != nil {
		return nil, err
	}

	r := &Receiver{
		id:        id,
		adapter:   adapter.NewStreamMultiReceiverAdapter(),
		srt:       sock,
		sink:      sink,
		logger:    logger.WithChannel(t.logger, id).With("role", "receiver"),
		metrics:   t.options.Metrics,
		channel:   fmt.Sprintf("%d", id),
		sigBroker: t.broker,
		stopCh:    make(chan struct{}),
	}

	port, found, index, ch := t.broker.Rendezvous(id)
	if found {
		r.startMulticast(t.options.Multicast, port)
	} else {
		r.sigPending = true
		r.sigIndex = index
		r.wg.Add(1)
		go r.signalWaitLoop(ch, t.options.Multicast)
	}

	r.wg.Add(1)
	go r.srtReadLoop()

	if desc.Video != nil {
		r.wg.Add(1)
		go r.decodeLoop(wire.Video, desc.Video)
	}
	if desc.Audio != nil {
		r.wg.Add(1)
		go r.decodeLoop(wire.Audio, desc.Audio)
	}

	r.wg.Add(1)
	go r.statsLoop()

	return r, nil
}

// statsLoop mirrors Sender.statsLoop for the receive side, reporting the
// video and audio adapter queue depths as separate gauge series.
func (r *Receiver) statsLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.metrics.ObserveSRT(r.channel, "receiver", r.srt.Stats())
			r.metrics.SetQueueDepth(r.channel, "video", r.adapter.Len(wire.Video))
			r.metrics.SetQueueDepth(r.channel, "audio", r.adapter.Len(wire.Audio))
		}
	}
}

// signalWaitLoop waits for a Start signal matching this receiver's id,
// then spawns the multicast receiver for the port it announces. It exits
// without spawning anything if the channel closes first (Unsubscribe,
// called from fail, is what closes it on an early Close).
func (r *Receiver) signalWaitLoop(ch <-chan signal.Signal, group net.IP) {
	defer r.wg.Done()

	for sig := range ch {
		if sig.Tag == signal.Start && sig.ID == r.id {
			r.startMulticast(group, sig.Port)
			return
		}
	}
}

// startMulticast joins the multicast receiver for port, replacing and
// closing any previous one (a sender may announce a new port if it
// restarts). Join failure is logged, not fatal — the SRT path still
// carries the stream.
func (r *Receiver) startMulticast(group net.IP, port uint16) {
	recv, err := multicast.NewReceiver(group, int(port), "")
	if err != nil {
		r.logger.Warn("multicast join failed", "port", port, "error", err)
		return
	}

	r.mcastMu.Lock()
	old := r.mcast
	r.mcast = recv
	r.mcastMu.Unlock()

	if old != nil {
		old.Close()
	}

	r.wg.Add(1)
	go r.mcastReadLoop(recv)
}

// srtReadLoop reassembles the SRT fragment stream, unpacks each message,
// and submits it to the adapter, tracking the fragment layer's own
// per-socket sequence for loss detection.
func (r *Receiver) srtReadLoop() {
	defer r.wg.Done()
	defer r.fail("transport_error")

	dec := fragment.NewDecoder()
	buf := bufpool.Get(srtReadBufferSize)
	defer bufpool.Put(buf)

	var lastSeq uint64
	first := true

	for {
		n, err := r.srt.Recv(buf)
		if err != nil {
			r.logger.Warn("srt recv failed", "error", err)
			return
		}
		if n == 0 {
			return
		}

		seq, reassembled, complete, decErr := dec.Decode(buf[:n])
		if decErr != nil {
			r.adapter.LossPkt()
			r.metrics.FragmentLoss(r.channel, "srt")
			continue
		}
		if !complete {
			continue
		}

		r.submit(seq, &lastSeq, &first, reassembled, "srt")
	}
}

// mcastReadLoop mirrors srtReadLoop for the multicast path, which runs an
// independent sequence counter from the SRT path on the same stream.
func (r *Receiver) mcastReadLoop(m *multicast.Receiver) {
	defer r.wg.Done()

	var lastSeq uint64
	first := true

	for {
		seq, payload, ok, err := m.Read()
		if err != nil {
			r.logger.Warn("multicast recv failed", "error", err)
			return
		}
		if !ok {
			return
		}

		r.submit(seq, &lastSeq, &first, payload, "multicast")
	}
}

// submit is the loss-check/unpack/adapter-send sequence shared by both
// read loops. first being true (rather than a literal "sequence is zero"
// check) is what lets a receiver join a stream whose sequence has already
// advanced well past zero without every frame until wraparound reading as
// a loss. transport labels which path (srt/multicast) this sample came
// from for the fragment-loss metric; the two paths run independent
// sequence counters on the same content, per spec.
func (r *Receiver) submit(seq uint64, lastSeq *uint64, first *bool, payload []byte, transport string) {
	contiguous := *first || seq-1 == *lastSeq
	*lastSeq = seq
	*first = false

	if !contiguous {
		r.adapter.LossPkt()
		r.metrics.FragmentLoss(r.channel, transport)
		return
	}

	info, body, ok := wire.Unpack(payload)
	if !ok {
		r.adapter.LossPkt()
		r.metrics.FragmentLoss(r.channel, transport)
		return
	}

	if !r.adapter.Send(body, info.Kind, info.Flags, info.Timestamp) {
		r.logger.Warn("adapter closed, dropping reassembled packet")
	}
}

// decodeLoop drains one kind's adapter queue, feeds the decoder, and
// forwards every frame it yields to the sink.
func (r *Receiver) decodeLoop(kind wire.StreamKind, dec media.Decoder) {
	defer r.wg.Done()

	for {
		unit, ok := r.adapter.Next(kind)
		if !ok {
			return
		}

		encoded := media.EncodedUnit{
			Payload:   unit.Payload,
			KeyFrame:  unit.Flags.Has(wire.KeyFrame),
			Config:    unit.Flags.Has(wire.Config),
			Timestamp: unit.Timestamp,
		}

		if err := dec.Decode(encoded); err != nil {
			r.logger.Error("decode failed", "kind", kind, "error", err)
			r.fail("decode_error")
			return
		}

		for {
			frame, ok := dec.Read()
			if !ok {
				break
			}

			sinkOK := false
			if kind == wire.Video {
				sinkOK = r.sink.Video(frame)
			} else {
				sinkOK = r.sink.Audio(frame)
			}
			if !sinkOK {
				r.logger.Info("sink declined frame, closing", "kind", kind)
				r.fail("sink_declined")
				return
			}
		}
	}
}

// fail is the single terminal-cleanup path. reason is reported to the
// metrics registry's sink-closed counter, labeled consistently with
// Sender.fail's reasons.
func (r *Receiver) fail(reason string) {
	r.closeOnce.Do(func() {
		if r.stopCh != nil {
			close(r.stopCh)
		}
		r.adapter.Close()
		if r.srt != nil {
			if err := r.srt.Close(); err != nil {
				r.logger.Warn("srt close error", "error", err)
			}
		}

		r.mcastMu.Lock()
		if r.mcast != nil {
			r.mcast.Close()
		}
		r.mcastMu.Unlock()

		if r.sigPending {
			r.sigBroker.Unsubscribe(r.sigIndex)
		}

		r.metrics.SinkClosed(r.channel, reason)
		r.sink.Close()
	})
}

// Close tears the pipeline down and waits for every goroutine it started
// to exit. Safe to call more than once.
func (r *Receiver) Close() error {
	r.fail("explicit_close")
	r.wg.Wait()
	return nil
}
