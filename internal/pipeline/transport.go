package pipeline

import (
	"context"
	"log/slog"
	"net"
	"time"

	rerrors "github.com/mycrl/mirror/internal/errors"
	"github.com/mycrl/mirror/internal/metrics"
	"github.com/mycrl/mirror/internal/signal"
	"github.com/mycrl/mirror/internal/transport/srt"
)

// connectTimeout bounds how long the initial SRT handshake for a single
// sender/receiver pipeline is allowed to take; the long-lived signal
// connection has no such bound (its lifetime is the process's).
const connectTimeout = 5 * time.Second

// defaultSRTFC and defaultSRTLatencyMs are applied when Options leaves the
// corresponding SRT field at its zero value, matching internal/config's
// own defaults so a Transport built without going through config.Load
// (tests, mainly) still gets sane SRT behavior.
const (
	defaultSRTFC        = 25600
	defaultSRTLatencyMs = 40
)

// Options is the shared configuration every sender and receiver pipeline
// created from one Transport inherits: the relay's address (used both for
// the long-lived signal TCP connection and for each SRT connect), the
// multicast group, the path MTU, and the SRT tuning knobs internal/config
// reads from the environment.
type Options struct {
	Server    string
	Multicast net.IP
	MTU       int

	SRTLatencyMs int
	SRTFC        int
	SRTMaxBW     int64 // -1 for uncapped
	SRTTimeoutMs int
	SRTFEC       string

	// Metrics is optional; a nil Registry makes every pipeline built from
	// this Transport a no-op reporter.
	Metrics *metrics.Registry
}

// srtDescriptor builds the srt.Descriptor shared by CreateSender and
// CreateReceiver, applying defaultSRTFC/defaultSRTLatencyMs for whichever
// fields Options left unset.
func (o Options) srtDescriptor(streamID string) srt.Descriptor {
	latency := o.SRTLatencyMs
	if latency == 0 {
		latency = defaultSRTLatencyMs
	}
	fc := o.SRTFC
	if fc == 0 {
		fc = defaultSRTFC
	}

	return srt.Descriptor{
		MTU:          uint32(o.MTU),
		LatencyMs:    uint32(latency),
		FC:           uint32(fc),
		StreamID:     streamID,
		MaxBandwidth: o.SRTMaxBW,
		TimeoutMs:    uint32(o.SRTTimeoutMs),
		FECConfig:    o.SRTFEC,
	}
}

// Transport is the process-local object a sender or receiver application
// creates once: a signal connection to the relay, fanned out through a
// Broker, plus the shared options every pipeline built from it uses to
// open its own SRT and multicast sockets.
type Transport struct {
	options Options
	broker  *signal.Broker
	conn    *signal.Conn
	logger  *slog.Logger
}

// Connect dials the relay's signal endpoint and returns a Transport ready
// to create senders and receivers.
func Connect(ctx context.Context, options Options, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	broker := signal.NewBroker()
	conn, err := signal.Dial(ctx, options.Server, broker, logger)
	if err != nil {
		return nil, rerrors.NewTransportError("pipeline.transport.connect", err)
	}

	return &Transport{options: options, broker: broker, conn: conn, logger: logger}, nil
}

// Close closes the signal connection. It does not close any sender or
// receiver pipelines created from this Transport — those are closed
// independently, by the caller or by their own terminal failures.
func (t *Transport) Close() error {
	return t.conn.Close()
}
