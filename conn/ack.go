package conn

import "github.com/xtaci/srt-go/wire"

// AckIntervalUs is the fixed period a connected receiver reports its
// cumulative ACK point at. This pack's original_source/srtcore carries no
// core.cpp/m_tsNextACKTime to ground the exact constant on, so it is
// spec.md's own named default.
const AckIntervalUs = 10_000

// BuildACK is the receive side's half of spec §4.H/§4.I's periodic ACK:
// it reports the cumulative sequence number below which every packet has
// arrived contiguously (rcvbuf.AckPoint), stamped with the send time so
// the peer's ACKACK reply lets this side sample RTT, and carries a full
// AckBody of RTT/RTTVar/available-buffer/rate estimates so the sender can
// size its flow window off real numbers. ok is false when the ack point
// has not advanced since the last ACK this connection sent — the caller
// must suppress the send in that case rather than re-announcing an
// unchanged cumulative point every tick.
func (c *Conn) BuildACK(nowUs int64) (pkt wire.ControlPacket, ok bool) {
	ackPoint := c.rcv.AckPoint()

	c.mu.Lock()
	advanced := !c.lastAckPointSet || ackPoint != c.lastAckPoint
	if advanced {
		c.lastAckPoint = ackPoint
		c.lastAckPointSet = true
	}
	c.mu.Unlock()

	if !advanced {
		return wire.ControlPacket{}, false
	}

	body := wire.EncodeAck(wire.AckBody{
		RTTUs:        uint32(c.rtt.RTT()),
		RTTVarUs:     uint32(c.rtt.RTTVar()),
		AvailBufSize: uint32(c.rcv.AvailSize()),
		PktRecvRate:  uint32(c.arrival.PacketsPerSecond()),
		EstBandwidth: uint32(c.bitrate.BitsPerSecond()),
	})

	return wire.ControlPacket{
		ControlHeader: wire.ControlHeader{
			Type:         wire.CtrlACK,
			TypeSpecific: ackPoint,
			TimestampUs:  uint32(nowUs),
			DestSocket:   c.PeerSocketID(),
		},
		Body: body,
	}, true
}

// HandleACK is the send side's half: it frees every acknowledged cell
// from the send buffer (opening the flight window back up) and returns
// the reply the sender owes the receiver, an ACKACK echoing the ACK's
// own timestamp for the receiver's RTT sample.
func (c *Conn) HandleACK(ctrl wire.ControlPacket) wire.ControlPacket {
	c.snd.Revoke(ctrl.TypeSpecific)
	c.cnt.AddPktRecvACK(1)
	return wire.ControlPacket{
		ControlHeader: wire.ControlHeader{
			Type:         wire.CtrlACKACK,
			TypeSpecific: ctrl.TypeSpecific,
			TimestampUs:  ctrl.TimestampUs,
			DestSocket:   c.PeerSocketID(),
		},
	}
}
