package signal

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"

	rerrors "github.com/mycrl/mirror/internal/errors"
)

// readBufferSize matches the teacher's stream-read scratch size; signal
// frames are tiny, so this comfortably holds several per read.
const readBufferSize = 1024

// Conn is a long-lived TCP connection to the relay's signal endpoint. One
// background goroutine reads and decodes frames, dispatching each to the
// shared Broker; Send is safe to call concurrently with the reader.
type Conn struct {
	conn   net.Conn
	broker *Broker
	logger *slog.Logger

	writeMu sync.Mutex
	closed  chan struct{}
}

// Dial connects to the relay's signal address and starts the background
// reader. Every decoded signal is handed to broker.Dispatch.
func Dial(ctx context.Context, addr string, broker *Broker, logger *slog.Logger) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, rerrors.NewTransportError("signal.dial", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		conn:   nc,
		broker: broker,
		logger: logger,
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// readLoop is the sole owner of the socket's read side. It exits (closing
// the connection and the closed channel) on any read error or EOF, which
// is the only way this connection signals termination upstream.
func (c *Conn) readLoop() {
	defer close(c.closed)
	defer c.conn.Close()

	dec := NewDecoder()
	buf := make([]byte, readBufferSize)

	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			for _, sig := range dec.Feed(buf[:n]) {
				c.logger.Info("recv signal", "tag", sig.Tag, "id", sig.ID, "port", sig.Port)
				c.broker.Dispatch(sig)
			}
		}
		if err != nil {
			if err != io.EOF {
				c.logger.Warn("signal connection read failed", "error", err)
			}
			return
		}
	}
}

// Send encodes and writes sig. Concurrency-safe with other Send calls and
// with the background reader.
func (c *Conn) Send(sig Signal) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Write(sig.Encode()); err != nil {
		return rerrors.NewTransportError("signal.send", err)
	}
	return nil
}

// Done is closed when the connection's read loop has exited.
func (c *Conn) Done() <-chan struct{} { return c.closed }

// Close closes the underlying socket, unblocking the read loop.
func (c *Conn) Close() error {
	return c.conn.Close()
}
