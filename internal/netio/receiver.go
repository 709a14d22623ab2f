// Package netio provides the IPv4 UDP receive and send loops around the
// wire codec and the packet engine.
//
// The receive side is a blocking read loop that hands each datagram off
// to a worker pool for processing.
package netio

import (
	"errors"
	"net"

	"github.com/charmbracelet/log"

	"github.com/nfpgo/nfp/internal/wire"
)

// PacketSink receives a decoded inbound datagram plus its source address
// and port, for further processing.
type PacketSink interface {
	Dispatch(dg wire.Inbound, srcAddr [4]byte, srcPort uint16)
}

// Receiver owns a bound UDP socket and a read loop that decodes each
// datagram and hands it to a PacketSink.
type Receiver struct {
	conn   *net.UDPConn
	sink   PacketSink
	logger *log.Logger
}

// NewReceiver binds an IPv4 UDP socket on the given port and returns a
// Receiver ready to Run.
func NewReceiver(port int, sink PacketSink, logger *log.Logger) (*Receiver, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, err
	}
	return &Receiver{conn: conn, sink: sink, logger: logger}, nil
}

// LocalAddr returns the bound address, useful when port 0 was requested.
func (r *Receiver) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// Run reads datagrams until the socket is closed via Close. Reads that are
// not exactly wire.InboundSize bytes are dropped, with a warning when a
// logger is attached — the wire format
// has no length prefix, so a short or oversized read can only mean a
// malformed or foreign sender.
func (r *Receiver) Run() error {
	buf := make([]byte, wire.InboundSize+1) // +1 to detect oversized reads
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if r.logger != nil {
				r.logger.Error("udp read failed", "err", err)
			}
			continue
		}

		if n != wire.InboundSize {
			if r.logger != nil {
				r.logger.Warn("dropped malformed datagram", "len", n, "from", addr)
			}
			continue
		}

		dg, ok := wire.DecodeInbound(buf[:n])
		if !ok {
			continue
		}

		var srcAddr [4]byte
		ip4 := addr.IP.To4()
		if ip4 == nil {
			continue // IPv6 source, out of scope
		}
		copy(srcAddr[:], ip4)

		r.sink.Dispatch(dg, srcAddr, uint16(addr.Port))
	}
}

// Close shuts down the listening socket, causing Run to return.
func (r *Receiver) Close() error {
	return r.conn.Close()
}
