package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mycrl/mirror/internal/logger"
	"github.com/mycrl/mirror/internal/metrics"
	"github.com/mycrl/mirror/internal/signal"
	"github.com/mycrl/mirror/internal/transport/srt"
)

// forwardBufferSize bounds one Recv call off a publisher's SRT socket
// before it is fanned out to every subscriber; sized against the largest
// MTU this module's fragment encoder would ever hand to a single Send.
const forwardBufferSize = 65536

// Server ties together the two planes a mirror relay offers: the SRT
// listener publishers and subscribers connect to for media, and the TCP
// signal listener that broadcasts each publish/retire as a Start/Stop
// signal. It never parses wire fragments — forwarding is a byte copy from
// one accepted SRT socket to a snapshot of others, the same shape as the
// teacher's Registry.BroadcastMessage for RTMP.
type Server struct {
	registry *Registry
	hooks    *HookManager
	metrics  *metrics.Registry
	log      *slog.Logger

	srtListener *srt.Listener

	signalListener net.Listener
	signalConnSeq  atomic.Uint64
	signalMu       sync.Mutex
	signalConns    map[net.Conn]struct{}
}

// NewServer constructs a Server around an empty Registry. hooks and
// metricsReg may both be nil; a nil HookManager skips event firing, and a
// nil metrics.Registry makes every report a no-op.
func NewServer(hooks *HookManager, metricsReg *metrics.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		registry:    NewRegistry(),
		hooks:       hooks,
		metrics:     metricsReg,
		log:         log,
		signalConns: make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds addr for both the SRT and the TCP signal listener
// and runs until ctx is cancelled, then closes both listeners and every
// open connection.
func (s *Server) ListenAndServe(ctx context.Context, addr string, desc srt.Descriptor) error {
	srtLn, err := srt.Listen(addr, desc)
	if err != nil {
		return fmt.Errorf("relay: srt listen: %w", err)
	}
	s.srtListener = srtLn

	sigLn, err := net.Listen("tcp", addr)
	if err != nil {
		srtLn.Close()
		return fmt.Errorf("relay: signal listen: %w", err)
	}
	s.signalListener = sigLn

	go s.acceptSignalConns()
	go func() {
		<-ctx.Done()
		srtLn.Close()
		sigLn.Close()
	}()

	s.log.Info("relay listening", "addr", addr)
	return s.acceptSRT()
}

// acceptSRT is the SRT accept loop: classify each incoming handshake by
// its STREAMID, admit or reject it, then hand it to handlePublisher or
// handleSubscriber.
func (s *Server) acceptSRT() error {
	for {
		var info srt.StreamInfo
		sock, err := s.srtListener.Accept(func(streamID string) srt.AcceptDecision {
			parsed, perr := srt.ParseStreamInfo(streamID)
			if perr != nil {
				return srt.Reject
			}
			info = parsed

			switch parsed.Kind {
			case srt.Publisher:
				if !parsed.HasPort {
					return srt.Reject
				}
				if _, exists := s.registry.Get(parsed.ID); exists {
					return srt.Reject
				}
				return srt.AdmitPublisher
			case srt.Subscriber:
				if _, exists := s.registry.Get(parsed.ID); !exists {
					return srt.Reject
				}
				return srt.AdmitSubscriber
			default:
				return srt.Reject
			}
		})
		if err != nil {
			s.log.Warn("srt accept loop exiting", "error", err)
			return err
		}

		switch info.Kind {
		case srt.Publisher:
			go s.handlePublisher(info, sock)
		case srt.Subscriber:
			go s.handleSubscriber(info, sock)
		}
	}
}

// handlePublisher registers the stream, broadcasts Start, forwards every
// received payload to the current subscriber set, and on disconnect
// retires the stream and broadcasts Stop.
func (s *Server) handlePublisher(info srt.StreamInfo, sock *srt.Socket) {
	log := logger.WithChannel(s.log, info.ID).With("role", "publisher")

	st, ok := s.registry.RegisterPublisher(info.ID, info.Port, sock)
	if !ok {
		log.Warn("duplicate publisher rejected after admit race")
		sock.Close()
		return
	}
	log.Info("publisher connected", "port", info.Port)

	s.metrics.SetActiveStreams(s.registry.Count())
	s.broadcastSignal(signal.Signal{Tag: signal.Start, ID: info.ID, Port: info.Port})
	s.fireEvent(EventStreamStart, info.ID, "")

	buf := make([]byte, forwardBufferSize)
	for {
		n, err := sock.Recv(buf)
		if err != nil || n == 0 {
			break
		}

		for _, sub := range st.snapshotSubscribers() {
			if sendErr := sub.Send(buf[:n]); sendErr != nil {
				st.removeSubscriber(sub)
				sub.Close()
			}
		}
		s.metrics.SetSubscribers(fmt.Sprintf("%d", info.ID), st.subscriberCount())
	}

	s.registry.RemovePublisher(info.ID)
	for _, sub := range st.snapshotSubscribers() {
		sub.Close()
	}
	sock.Close()

	log.Info("publisher disconnected")
	s.metrics.SetActiveStreams(s.registry.Count())
	s.broadcastSignal(signal.Signal{Tag: signal.Stop, ID: info.ID})
	s.fireEvent(EventStreamStop, info.ID, "")
}

// handleSubscriber attaches sock to its stream's fan-out set and blocks
// reading from it (discarding anything received — subscribers never send
// media) purely to detect disconnect.
func (s *Server) handleSubscriber(info srt.StreamInfo, sock *srt.Socket) {
	log := logger.WithChannel(s.log, info.ID).With("role", "subscriber")

	st, ok := s.registry.Get(info.ID)
	if !ok {
		sock.Close()
		return
	}
	st.addSubscriber(sock)
	log.Info("subscriber connected")
	s.fireEvent(EventConnectionAccept, info.ID, "")
	s.metrics.SetSubscribers(fmt.Sprintf("%d", info.ID), st.subscriberCount())

	buf := make([]byte, 188)
	for {
		_, err := sock.Recv(buf)
		if err != nil {
			break
		}
	}

	st.removeSubscriber(sock)
	sock.Close()
	log.Info("subscriber disconnected")
	s.fireEvent(EventConnectionClose, info.ID, "")
	s.metrics.SetSubscribers(fmt.Sprintf("%d", info.ID), st.subscriberCount())
}

// acceptSignalConns is the TCP accept loop for the signal plane: every
// accepted connection is added to the broadcast set and read from only to
// detect its close (clients never send on this connection).
func (s *Server) acceptSignalConns() {
	for {
		conn, err := s.signalListener.Accept()
		if err != nil {
			return
		}

		s.signalMu.Lock()
		s.signalConns[conn] = struct{}{}
		s.signalMu.Unlock()

		connID := fmt.Sprintf("%d", s.signalConnSeq.Add(1))
		go s.drainSignalConn(conn, connID)
	}
}

func (s *Server) drainSignalConn(conn net.Conn, connID string) {
	log := logger.WithPeer(s.log, connID, conn.RemoteAddr().String())
	log.Info("signal client connected")

	buf := make([]byte, 256)
	for {
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}

	s.signalMu.Lock()
	delete(s.signalConns, conn)
	s.signalMu.Unlock()
	conn.Close()
	log.Info("signal client disconnected")
}

// broadcastSignal writes sig to every currently-connected signal client,
// snapshotting the connection set under the lock and writing outside it,
// same as the media-plane fan-out.
func (s *Server) broadcastSignal(sig signal.Signal) {
	encoded := sig.Encode()

	s.signalMu.Lock()
	conns := make([]net.Conn, 0, len(s.signalConns))
	for c := range s.signalConns {
		conns = append(conns, c)
	}
	s.signalMu.Unlock()

	for _, c := range conns {
		_, _ = c.Write(encoded)
	}
}

func (s *Server) fireEvent(eventType EventType, channelID uint32, remote string) {
	if s.hooks == nil {
		return
	}
	event := NewEvent(eventType, time.Now().Unix()).WithChannel(channelID)
	if remote != "" {
		event = event.WithRemote(remote)
	}
	s.hooks.TriggerEvent(context.Background(), event)
}

// ActiveStreams returns the number of currently-published channels.
func (s *Server) ActiveStreams() int {
	return s.registry.Count()
}
