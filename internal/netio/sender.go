package netio

import (
	"net"

	"github.com/charmbracelet/log"

	"github.com/nfpgo/nfp/internal/wire"
)

// Sender owns an unconnected IPv4 UDP socket used to write processed
// blocks to each connection's reported output port on the fixed
// destination address. It satisfies engine.Sender.
type Sender struct {
	conn   *net.UDPConn
	destIP net.IP
	logger *log.Logger
}

// NewSender opens a UDP socket for outbound writes. destIP is the address
// every Send targets; only the port varies per connection, matching the
// wire protocol's per-datagram out_port field.
func NewSender(destIP net.IP, logger *log.Logger) (*Sender, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, err
	}
	return &Sender{conn: conn, destIP: destIP, logger: logger}, nil
}

// Send encodes samples and writes them to destIP:port. Errors are logged
// and otherwise ignored — there is no retry or delivery guarantee for UDP
// output, matching the fire-and-forget semantics of the wire protocol.
func (s *Sender) Send(samples []float32, port uint16) {
	buf := wire.EncodeOutbound(samples)
	addr := &net.UDPAddr{IP: s.destIP, Port: int(port)}
	if _, err := s.conn.WriteToUDP(buf, addr); err != nil && s.logger != nil {
		s.logger.Error("udp send failed", "port", port, "err", err)
	}
}

// Close releases the outbound socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}
