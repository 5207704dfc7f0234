package srt

import (
	"errors"

	gosrt "github.com/datarhei/gosrt"

	rerrors "github.com/mycrl/mirror/internal/errors"
)

// AcceptDecision tells the listener how to admit a connecting peer, once
// the caller has inspected the STREAMID it presented.
type AcceptDecision int

const (
	Reject AcceptDecision = iota
	AdmitPublisher
	AdmitSubscriber
)

// Listener accepts SRT connections. Described here for completeness — the
// relay server that uses it is not otherwise in scope — but internal/relay
// exercises it as a reference implementation.
type Listener struct {
	ln gosrt.Listener
}

// Listen binds addr and starts accepting SRT handshakes.
func Listen(addr string, desc Descriptor) (*Listener, error) {
	ln, err := gosrt.Listen("srt", addr, desc.toGosrtConfig())
	if err != nil {
		return nil, rerrors.NewTransportError("srt.listen", err)
	}
	return &Listener{ln: ln}, nil
}

// Accept blocks for the next incoming handshake. decide is invoked with
// the STREAMID string the peer presented and must say whether (and as
// what role) to admit it.
func (l *Listener) Accept(decide func(streamID string) AcceptDecision) (*Socket, error) {
	conn, _, err := l.ln.Accept(func(req gosrt.ConnRequest) gosrt.ConnType {
		switch decide(req.StreamId()) {
		case AdmitPublisher:
			return gosrt.PUBLISH
		case AdmitSubscriber:
			return gosrt.SUBSCRIBE
		default:
			return gosrt.REJECT
		}
	})
	if err != nil {
		return nil, rerrors.NewTransportError("srt.accept", err)
	}

	sc, ok := conn.(gosrt.Conn)
	if !ok {
		return nil, rerrors.NewResourceError("srt.accept", errors.New("accepted connection does not implement gosrt.Conn"))
	}
	return &Socket{conn: sc}, nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}
