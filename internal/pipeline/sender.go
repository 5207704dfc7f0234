package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mycrl/mirror/internal/adapter"
	"github.com/mycrl/mirror/internal/fragment"
	"github.com/mycrl/mirror/internal/logger"
	"github.com/mycrl/mirror/internal/media"
	"github.com/mycrl/mirror/internal/metrics"
	"github.com/mycrl/mirror/internal/transport/multicast"
	"github.com/mycrl/mirror/internal/transport/srt"
	"github.com/mycrl/mirror/internal/wire"
)

// statsInterval is how often a sender or receiver pipeline samples SRT
// trace statistics and adapter queue depth into the metrics registry.
const statsInterval = 5 * time.Second

// VideoSource pairs a capture Source with an already-configured Encoder
// and the options it was configured with. The encoder itself is an
// external collaborator — this module drives it, it does not construct
// one from VideoOptions.
type VideoSource struct {
	Source  media.Source
	Encoder media.Encoder
	Options media.VideoOptions
}

// AudioSource is VideoSource's audio analogue.
type AudioSource struct {
	Source  media.Source
	Encoder media.Encoder
	Options media.AudioOptions
}

// SenderDescriptor configures one outbound stream. Video and Audio are
// both optional; a sender with neither still opens its transport sockets
// and can be driven later, though in practice at least one is present.
type SenderDescriptor struct {
	Video     *VideoSource
	Audio     *AudioSource
	Multicast bool
}

// Sender binds capture frames to encoders, drives encode->read->send for
// each, and routes each drained adapter item over whichever transport
// (SRT or multicast) is currently selected.
type Sender struct {
	id      uint32
	adapter *adapter.StreamSenderAdapter
	srt     *srt.Socket
	mcast   *multicast.Sender
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Registry
	channel string

	ctx    context.Context
	cancel context.CancelFunc

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// CreateSender allocates a multicast port, opens an SRT socket announcing
// itself as the publisher for id, and starts the capture/encode/send
// machinery described by desc.
func (t *Transport) CreateSender(id uint32, desc SenderDescriptor, sink Sink) (*Sender, error) {
	port, err := multicast.AllocPort()
	if err != nil {
		return nil, err
	}

	mcastSender, err := multicast.NewSender(t.options.Multicast, port, t.options.MTU)
	if err != nil {
		return nil, err
	}

	streamInfo := srt.StreamInfo{Kind: srt.Publisher, ID: id, Port: uint16(port), HasPort: true}
	srtDesc := t.options.srtDescriptor(streamInfo.Encode())

	dialCtx, cancelDial := context.WithTimeout(context.Background(), connectTimeout)
	defer cancelDial()

	sock, err := srt.Connect(dialCtx, t.options.Server, srtDesc)
	if err != nil {
		mcastSender.Close()
		return nil, err
	}

	log := logger.WithChannel(t.logger, id).With("role", "sender")
	ctx, cancel := context.WithCancel(context.Background())

	s := &Sender{
		id:      id,
		adapter: adapter.NewStreamSenderAdapter(desc.Multicast),
		srt:     sock,
		mcast:   mcastSender,
		sink:    sink,
		logger:  log,
		metrics: t.options.Metrics,
		channel: fmt.Sprintf("%d", id),
		ctx:     ctx,
		cancel:  cancel,
	}

	if desc.Audio != nil {
		header := media.BuildOpusIdentificationHeader(uint8(desc.Audio.Options.Channels), uint32(desc.Audio.Options.SampleRate))
		s.adapter.Send(header, wire.Info{Kind: wire.Audio, Flags: wire.Config, Timestamp: 0})
	}

	if desc.Video != nil {
		s.wg.Add(1)
		go s.captureLoop(desc.Video.Source, desc.Video.Encoder, wire.Video)
	}
	if desc.Audio != nil {
		s.wg.Add(1)
		go s.captureLoop(desc.Audio.Source, desc.Audio.Encoder, wire.Audio)
	}

	s.wg.Add(1)
	go s.sendWorker(srtDesc.MaxPacketSize())

	s.wg.Add(1)
	go s.statsLoop()

	return s, nil
}

// statsLoop periodically samples SRT trace stats and the adapter queue
// depth into the metrics registry, until the pipeline fails or closes.
// A nil registry makes every call here a no-op, so this goroutine costs
// one ticker and nothing else when metrics are disabled.
func (s *Sender) statsLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.metrics.ObserveSRT(s.channel, "sender", s.srt.Stats())
			s.metrics.SetQueueDepth(s.channel, "sender", s.adapter.Len())
		}
	}
}

// captureLoop feeds frames from src into enc, drains every packet the
// encoder produces into the sender adapter, and forwards the raw frame to
// the sink. Any failure along the way is terminal for the whole pipeline.
func (s *Sender) captureLoop(src media.Source, enc media.Encoder, kind wire.StreamKind) {
	defer s.wg.Done()

	for {
		frame, err := src.Read(s.ctx)
		if err != nil {
			s.logger.Warn("capture source ended", "kind", kind, "error", err)
			s.fail("source_ended")
			return
		}

		if err := enc.Encode(frame); err != nil {
			s.logger.Error("encode failed", "kind", kind, "error", err)
			s.fail("encode_error")
			return
		}

		for {
			unit, ok := enc.Read()
			if !ok {
				break
			}

			var flags wire.BufferFlag
			if unit.KeyFrame {
				flags |= wire.KeyFrame
			}
			if unit.Config {
				flags |= wire.Config
			}

			if !s.adapter.Send(unit.Payload, wire.Info{Kind: kind, Flags: flags, Timestamp: unit.Timestamp}) {
				s.logger.Warn("adapter closed, dropping encoded packet", "kind", kind)
				s.fail("adapter_closed")
				return
			}
		}

		ok := false
		if kind == wire.Video {
			ok = s.sink.Video(frame)
		} else {
			ok = s.sink.Audio(frame)
		}
		if !ok {
			s.logger.Info("sink declined frame, closing", "kind", kind)
			s.fail("sink_declined")
			return
		}
	}
}

// sendWorker is the single consumer of the adapter queue: it packetizes
// every drained item and routes it to whichever transport is currently
// selected, fragmenting for SRT (multicast fragments internally).
func (s *Sender) sendWorker(maxPacketSize int) {
	defer s.wg.Done()

	chunkSize := maxPacketSize - fragment.HeaderSize
	if chunkSize < 1 {
		chunkSize = 1
	}
	encoder := fragment.NewEncoder(chunkSize)

	for {
		unit, ok := s.adapter.Next()
		if !ok {
			return
		}

		payload := wire.Pack(wire.Info{Kind: unit.Kind, Flags: unit.Flags, Timestamp: unit.Timestamp}, unit.Payload)

		if s.adapter.GetMulticast() {
			if err := s.mcast.Send(payload); err != nil {
				s.logger.Error("multicast send failed", "error", err)
				s.fail("transport_error")
				return
			}
			continue
		}

		for _, chunk := range encoder.Encode(payload) {
			if err := s.srt.Send(chunk); err != nil {
				s.logger.Error("srt send failed", "error", err)
				s.fail("transport_error")
				return
			}
		}
	}
}

// GetMulticast reports the current transport selection.
func (s *Sender) GetMulticast() bool { return s.adapter.GetMulticast() }

// SetMulticast flips the transport selection the send worker consults
// before its next drained item.
func (s *Sender) SetMulticast(multicast bool) { s.adapter.SetMulticast(multicast) }

// fail is the single terminal-cleanup path, reachable from any failing
// goroutine or an explicit Close. reason is reported to the metrics
// registry's sink-closed counter, labeled the same way across every call
// site so a dashboard can break down closures by cause.
func (s *Sender) fail(reason string) {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.adapter.Close()
		if s.srt != nil {
			if err := s.srt.Close(); err != nil {
				s.logger.Warn("srt close error", "error", err)
			}
		}
		if s.mcast != nil {
			if err := s.mcast.Close(); err != nil {
				s.logger.Warn("multicast close error", "error", err)
			}
		}
		s.metrics.SinkClosed(s.channel, reason)
		s.sink.Close()
	})
}

// Close tears the pipeline down and waits for every goroutine it started
// to exit. Safe to call more than once and safe to call after a terminal
// failure already closed it.
func (s *Sender) Close() error {
	s.fail("explicit_close")
	s.wg.Wait()
	return nil
}
