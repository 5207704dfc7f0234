// Package relay implements the mirror relay: the process the sender's SRT
// handshake and the TCP signal plane both connect to. It is a dumb byte
// forwarder at the media layer — it never parses wire fragments — and a
// rendezvous point at the signal layer, broadcasting each publisher's
// multicast port to every connected receiver. Grounded on the teacher's
// internal/rtmp/server package, which plays the analogous role for RTMP.
package relay

import (
	"sync"

	"github.com/mycrl/mirror/internal/transport/srt"
)

// stream tracks one published channel: its multicast port (announced by
// the publisher itself in its SRT STREAMID, never chosen by the relay)
// and the set of subscriber sockets currently attached to it.
type stream struct {
	mu          sync.RWMutex
	port        uint16
	publisher   *srt.Socket
	subscribers map[*srt.Socket]struct{}
}

func newStream(port uint16, publisher *srt.Socket) *stream {
	return &stream{
		port:        port,
		publisher:   publisher,
		subscribers: make(map[*srt.Socket]struct{}),
	}
}

// addSubscriber attaches sock to the stream's fan-out set.
func (s *stream) addSubscriber(sock *srt.Socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[sock] = struct{}{}
}

// removeSubscriber detaches sock, returning whether it was present.
func (s *stream) removeSubscriber(sock *srt.Socket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[sock]; !ok {
		return false
	}
	delete(s.subscribers, sock)
	return true
}

// snapshotSubscribers returns a point-in-time copy of the subscriber set,
// taken under the lock and then released, so the caller can fan bytes out
// to each one without holding the lock during I/O — the same pattern the
// teacher's Registry.BroadcastMessage uses for its own subscriber set.
func (s *stream) snapshotSubscribers() []*srt.Socket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*srt.Socket, 0, len(s.subscribers))
	for sock := range s.subscribers {
		out = append(out, sock)
	}
	return out
}

func (s *stream) subscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// Registry tracks every currently-published channel by its id: the same
// uint32 channel id that mirror senders and receivers pass to
// Transport.CreateSender and Transport.CreateReceiver.
type Registry struct {
	mu      sync.RWMutex
	streams map[uint32]*stream
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{streams: make(map[uint32]*stream)}
}

// RegisterPublisher creates a new stream entry for id, rejecting the
// attempt if id is already published (one publisher per channel at a
// time, matching the teacher's Registry.SetPublisher rule).
func (r *Registry) RegisterPublisher(id uint32, port uint16, sock *srt.Socket) (*stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.streams[id]; exists {
		return nil, false
	}
	st := newStream(port, sock)
	r.streams[id] = st
	return st, true
}

// RemovePublisher retires id's stream entirely, returning it (so callers
// can snapshot and disconnect its subscribers) and whether it existed.
func (r *Registry) RemovePublisher(id uint32) (*stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.streams[id]
	if !ok {
		return nil, false
	}
	delete(r.streams, id)
	return st, true
}

// Get returns the stream registered for id, if any.
func (r *Registry) Get(id uint32) (*stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.streams[id]
	return st, ok
}

// Count returns the number of currently-published streams.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}
