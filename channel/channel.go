// Package channel implements the UDP transport surface (spec §4.B): a
// single bound UDP socket shared by every connection multiplexed on top of
// it, non-blocking send/receive, and recovery of the local destination
// address a packet arrived on so a multi-homed bind-to-any listener can
// reply from the correct interface. The batch-vs-fallback split mirrors
// kcp-go's readloop.go/readloop_linux.go/platform_linux.go: a plain
// net.PacketConn path everywhere, and an x/net/ipv4 or ipv6 PacketConn
// with control-message ancillary data where the OS supports it.
package channel

import (
	"net"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// MTULimit is the largest single datagram the channel will ever hand to a
// caller's read buffer; spec §4.C bounds real packets well under this.
const MTULimit = 2048

// Packet is one datagram read off the wire together with the peer address
// it came from and, when the platform could recover it, the local address
// it arrived on.
type Packet struct {
	Data []byte
	Peer net.Addr
	Dest net.IP // nil if the platform could not report it
}

// Channel owns one bound net.PacketConn and demultiplexes raw datagrams
// for every connection layered on top of it (component J, mux, consumes
// this).
type Channel struct {
	conn net.PacketConn

	v4 *ipv4.PacketConn
	v6 *ipv6.PacketConn

	inErrs    uint64
	inPackets uint64
}

// New wraps an already-bound net.PacketConn. It tries to enable
// destination-address control messages; platforms or conn types that
// don't support it fall back transparently to the plain ReadFrom/WriteTo
// path used by kcp-go's defaultReadLoop.
func New(conn net.PacketConn) *Channel {
	c := &Channel{conn: conn}

	addr, err := net.ResolveUDPAddr("udp", conn.LocalAddr().String())
	if err == nil && addr.IP.To4() != nil {
		p := ipv4.NewPacketConn(conn)
		if p.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface, true) == nil {
			c.v4 = p
		}
	} else {
		p := ipv6.NewPacketConn(conn)
		if p.SetControlMessage(ipv6.FlagDst|ipv6.FlagInterface, true) == nil {
			c.v6 = p
		}
	}
	return c
}

// LocalAddr reports the bound address of the underlying socket.
func (c *Channel) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// ReadPacket reads a single datagram into buf, returning the peer address
// and, when available, the local destination address it was sent to.
// Packets too short to carry a 16-byte header are discarded and counted
// rather than surfaced, per spec §4.B's "possible attack" short-packet
// policy; callers should keep reading after a zero-length, nil-error
// result rather than treating it as EOF.
func (c *Channel) ReadPacket(buf []byte) (Packet, error) {
	switch {
	case c.v4 != nil:
		n, cm, peer, err := c.v4.ReadFrom(buf)
		if err != nil {
			return Packet{}, errors.WithStack(err)
		}
		atomic.AddUint64(&c.inPackets, 1)
		if n < minPacketSize {
			atomic.AddUint64(&c.inErrs, 1)
			return Packet{}, nil
		}
		var dst net.IP
		if cm != nil {
			dst = cm.Dst
		}
		return Packet{Data: buf[:n], Peer: peer, Dest: dst}, nil

	case c.v6 != nil:
		n, cm, peer, err := c.v6.ReadFrom(buf)
		if err != nil {
			return Packet{}, errors.WithStack(err)
		}
		atomic.AddUint64(&c.inPackets, 1)
		if n < minPacketSize {
			atomic.AddUint64(&c.inErrs, 1)
			return Packet{}, nil
		}
		var dst net.IP
		if cm != nil {
			dst = cm.Dst
		}
		return Packet{Data: buf[:n], Peer: peer, Dest: dst}, nil

	default:
		n, peer, err := c.conn.ReadFrom(buf)
		if err != nil {
			return Packet{}, errors.WithStack(err)
		}
		atomic.AddUint64(&c.inPackets, 1)
		if n < minPacketSize {
			atomic.AddUint64(&c.inErrs, 1)
			return Packet{}, nil
		}
		return Packet{Data: buf[:n], Peer: peer}, nil
	}
}

// minPacketSize is the 16-byte fixed header every valid packet carries
// (spec §3); anything shorter cannot be a real SRT packet.
const minPacketSize = 16

// WritePacket sends data to peer, optionally sourcing the reply from a
// specific local address recovered by a prior ReadPacket (useful on a
// bind-to-any listener bound to multiple interfaces).
func (c *Channel) WritePacket(data []byte, peer net.Addr, src net.IP) error {
	switch {
	case c.v4 != nil:
		var cm *ipv4.ControlMessage
		if src != nil {
			cm = &ipv4.ControlMessage{Src: src}
		}
		_, err := c.v4.WriteTo(data, cm, peer)
		return errors.WithStack(err)
	case c.v6 != nil:
		var cm *ipv6.ControlMessage
		if src != nil {
			cm = &ipv6.ControlMessage{Src: src}
		}
		_, err := c.v6.WriteTo(data, cm, peer)
		return errors.WithStack(err)
	default:
		_, err := c.conn.WriteTo(data, peer)
		return errors.WithStack(err)
	}
}

// Close releases the underlying socket.
func (c *Channel) Close() error { return c.conn.Close() }

// InErrors reports the number of datagrams discarded for being shorter
// than the minimum valid packet size.
func (c *Channel) InErrors() uint64 { return atomic.LoadUint64(&c.inErrs) }

// InPackets reports the number of datagrams successfully read, including
// those subsequently discarded as too short.
func (c *Channel) InPackets() uint64 { return atomic.LoadUint64(&c.inPackets) }
