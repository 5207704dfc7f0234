// Package multicast sends and receives fragmented payloads over IPv4
// multicast, independent of (and running alongside) the SRT path for the
// same logical stream.
package multicast

import (
	"errors"
	"net"

	"golang.org/x/net/ipv4"

	rerrors "github.com/mycrl/mirror/internal/errors"
	"github.com/mycrl/mirror/internal/fragment"
)

const defaultTTL = 1

// AllocPort binds an ephemeral UDP socket purely to learn an unused port
// number from the OS, then releases it. The returned port becomes this
// sender's multicast group port and is announced to receivers via a
// Start{id, port} signal.
func AllocPort() (int, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return 0, rerrors.NewResourceError("multicast.alloc_port", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 0, rerrors.NewResourceError("multicast.alloc_port", errors.New("unexpected local address type"))
	}
	return addr.Port, nil
}

// Sender fragments packetized payloads to mtu-sized datagrams and writes
// them to one multicast group:port. It keeps its own sequence counter,
// independent of any SRT encoder serving the same logical stream.
type Sender struct {
	conn    *net.UDPConn
	pc      *ipv4.PacketConn
	encoder *fragment.Encoder
}

// NewSender binds locally to port (normally obtained from AllocPort) and
// targets group:port as the multicast destination.
func NewSender(group net.IP, port int, mtu int) (*Sender, error) {
	local := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	remote := &net.UDPAddr{IP: group, Port: port}

	conn, err := net.DialUDP("udp4", local, remote)
	if err != nil {
		return nil, rerrors.NewTransportError("multicast.dial", err)
	}

	pc := ipv4.NewPacketConn(conn)
	_ = pc.SetMulticastTTL(defaultTTL)
	_ = pc.SetMulticastLoopback(true)

	chunkSize := mtu - fragment.HeaderSize
	if chunkSize < 1 {
		chunkSize = 1
	}

	return &Sender{conn: conn, pc: pc, encoder: fragment.NewEncoder(chunkSize)}, nil
}

// Send fragments payload as needed and writes each resulting datagram.
func (s *Sender) Send(payload []byte) error {
	for _, frag := range s.encoder.Encode(payload) {
		if _, err := s.conn.Write(frag); err != nil {
			return rerrors.NewTransportError("multicast.send", err)
		}
	}
	return nil
}

// LocalPort reports the port this sender is bound to (equal to the port
// given at construction).
func (s *Sender) LocalPort() int {
	addr, ok := s.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 0
	}
	return addr.Port
}

func (s *Sender) Close() error {
	_ = s.pc.Close()
	return s.conn.Close()
}
