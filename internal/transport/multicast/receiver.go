package multicast

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"

	"github.com/mycrl/mirror/internal/bufpool"
	rerrors "github.com/mycrl/mirror/internal/errors"
	"github.com/mycrl/mirror/internal/fragment"
)

// readBufferSize covers the largest datagram any sender in this module
// ever writes; multicast MTUs stay well under it in practice.
const readBufferSize = 9000

// Receiver joins one multicast group:port and reassembles the fragment
// stream carried on it, independent of any SRT reassembly happening on
// the same logical connection.
type Receiver struct {
	conn    *net.UDPConn
	pc      *ipv4.PacketConn
	decoder *fragment.Decoder
}

// NewReceiver joins group on port, on ifaceName if given, otherwise on
// the first up, non-loopback, multicast-capable interface it finds.
func NewReceiver(group net.IP, port int, ifaceName string) (*Receiver, error) {
	lc := net.ListenConfig{Control: reusePortControl}
	pcConn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, rerrors.NewTransportError("multicast.listen", err)
	}

	conn, ok := pcConn.(*net.UDPConn)
	if !ok {
		pcConn.Close()
		return nil, rerrors.NewResourceError("multicast.listen", fmt.Errorf("unexpected packet conn type %T", pcConn))
	}

	pc := ipv4.NewPacketConn(conn)
	_ = pc.SetMulticastLoopback(true)

	ifi, err := resolveMulticastInterface(ifaceName)
	if err != nil {
		conn.Close()
		return nil, rerrors.NewResourceError("multicast.iface", err)
	}
	if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
		conn.Close()
		return nil, rerrors.NewTransportError("multicast.join", err)
	}

	return &Receiver{conn: conn, pc: pc, decoder: fragment.NewDecoder()}, nil
}

// Read blocks until one full message has been reassembled, returning its
// last-fragment sequence and payload. ok is false once the socket is
// closed; a non-nil err on a true read failure ends the stream, while a
// malformed individual fragment is swallowed and the read loop continues.
func (r *Receiver) Read() (sequence uint64, payload []byte, ok bool, err error) {
	buf := bufpool.Get(readBufferSize)
	defer bufpool.Put(buf)

	for {
		n, rerr := r.conn.Read(buf)
		if rerr != nil {
			return 0, nil, false, rerrors.NewTransportError("multicast.recv", rerr)
		}
		if n == 0 {
			return 0, nil, false, nil
		}

		seq, reassembled, complete, decErr := r.decoder.Decode(buf[:n])
		if decErr != nil {
			continue
		}
		if complete {
			return seq, reassembled, true, nil
		}
	}
}

// LossCount is the number of reassembly gaps this receiver has detected.
func (r *Receiver) LossCount() uint64 { return r.decoder.LossCount() }

func (r *Receiver) Close() error {
	_ = r.pc.Close()
	return r.conn.Close()
}

func resolveMulticastInterface(name string) (*net.Interface, error) {
	if name != "" {
		return net.InterfaceByName(name)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		ifi := ifaces[i]
		if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0 && ifi.Flags&net.FlagLoopback == 0 {
			return &ifi, nil
		}
	}
	return nil, fmt.Errorf("no multicast-capable interface found")
}
