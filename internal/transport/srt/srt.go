// Package srt wraps github.com/datarhei/gosrt into the narrow
// connect/listen/accept/send/recv surface this module's pipelines need,
// so the rest of the tree never imports gosrt directly.
package srt

import (
	"context"
	"io"
	"time"

	gosrt "github.com/datarhei/gosrt"

	rerrors "github.com/mycrl/mirror/internal/errors"
)

// Descriptor is the SRT option set recognized at connect/listen time,
// independent of gosrt's own Config shape.
type Descriptor struct {
	MTU          uint32
	LatencyMs    uint32
	FC           uint32 // flight flag size
	StreamID     string
	MaxBandwidth int64 // -1 for uncapped
	TimeoutMs    uint32
	FECConfig    string
}

func (d Descriptor) toGosrtConfig() gosrt.Config {
	cfg := gosrt.DefaultConfig()
	cfg.StreamId = d.StreamID

	if d.MTU > 0 {
		cfg.PayloadSize = d.MTU
	}
	if d.LatencyMs > 0 {
		latency := time.Duration(d.LatencyMs) * time.Millisecond
		cfg.PeerLatency = latency
		cfg.ReceiverLatency = latency
	}
	if d.FC > 0 {
		cfg.FC = d.FC
	}
	if d.MaxBandwidth != 0 {
		cfg.MaxBW = d.MaxBandwidth
	}
	if d.TimeoutMs > 0 {
		cfg.ConnectionTimeout = time.Duration(d.TimeoutMs) * time.Millisecond
	}
	if d.FECConfig != "" {
		cfg.PacketFilter = d.FECConfig
	}
	return cfg
}

// MaxPacketSize is the largest payload Send accepts in one call without a
// short write; the fragment encoder sizes its chunks against this.
func (d Descriptor) MaxPacketSize() int {
	if d.MTU == 0 {
		return int(gosrt.DefaultConfig().PayloadSize)
	}
	return int(d.MTU)
}

// Socket is a connected SRT endpoint.
type Socket struct {
	conn gosrt.Conn
}

// Connect dials addr as an SRT caller, announcing desc.StreamID in the
// handshake. ctx governs only the dial itself, not the socket's lifetime.
func Connect(ctx context.Context, addr string, desc Descriptor) (*Socket, error) {
	type result struct {
		conn gosrt.Conn
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		conn, err := gosrt.Dial("srt", addr, desc.toGosrtConfig())
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, rerrors.NewTransportError("srt.connect", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, rerrors.NewTransportError("srt.connect", r.err)
		}
		return &Socket{conn: r.conn}, nil
	}
}

// Send writes one full fragment. A short write is treated as fatal: SRT's
// message-mode delivery gives no partial-progress state worth retrying.
func (s *Socket) Send(chunk []byte) error {
	n, err := s.conn.Write(chunk)
	if err != nil {
		return rerrors.NewTransportError("srt.send", err)
	}
	if n != len(chunk) {
		return rerrors.NewTransportError("srt.send", io.ErrShortWrite)
	}
	return nil
}

// Recv reads up to one fragment into buf. A return of (0, nil) means the
// peer closed the connection.
func (s *Socket) Recv(buf []byte) (int, error) {
	n, err := s.conn.Read(buf)
	if err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, rerrors.NewTransportError("srt.recv", err)
	}
	return n, nil
}

// Close closes the underlying connection. Idempotent per gosrt's own
// contract.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// Stats returns the current SRT trace statistics for observability.
func (s *Socket) Stats() gosrt.Statistics {
	var stats gosrt.Statistics
	s.conn.Stats(&stats)
	return stats
}
