package conn

import (
	"github.com/xtaci/srt-go/scheduler"
	"github.com/xtaci/srt-go/sndbuf"
	"github.com/xtaci/srt-go/wire"
)

// BuildDataPacket implements the sender thread's half of spec §4.H: given
// a task the scheduler popped (a regular send or a retransmit of seq),
// pull the right cell from the send buffer and stamp a wire-ready data
// packet, already addressed to the peer's socket id learned during the
// handshake (handshake_flow.go's PeerSocketID).
func (c *Conn) BuildDataPacket(seqNo uint32, kind scheduler.Kind, nowUs int64) (wire.DataPacket, scheduler.Action) {
	switch kind {
	case scheduler.Regular:
		cell, ok := c.snd.ExtractUnique()
		if !ok {
			return wire.DataPacket{}, scheduler.ActionSkip
		}
		c.cnt.AddPktSent(1)
		c.cnt.AddBytesSent(uint64(len(cell.Payload)))
		c.bitrate.AddSample(nowUs, uint64(len(cell.Payload)))
		return c.dataPacketFromCell(cell, nowUs), scheduler.ActionSend
	case scheduler.Retransmit:
		cell, drop, ok := c.snd.ReadOld(seqNo, nowUs)
		if !ok {
			return wire.DataPacket{}, scheduler.ActionSkip
		}
		if drop {
			return wire.DataPacket{}, scheduler.ActionDrop
		}
		c.cnt.AddPktRetrans(1)
		c.cnt.AddBytesRetrans(uint64(len(cell.Payload)))
		return c.dataPacketFromCell(cell, nowUs), scheduler.ActionSend
	default:
		return wire.DataPacket{}, scheduler.ActionSkip
	}
}

func (c *Conn) dataPacketFromCell(cell sndbuf.Cell, nowUs int64) wire.DataPacket {
	return wire.DataPacket{
		DataHeader: wire.DataHeader{
			Seq:         cell.Seq,
			PB:          cell.PB,
			InOrder:     cell.InOrder,
			MsgNo:       cell.MsgNo,
			TimestampUs: c.tb.OriginTimestamp(nowUs),
			DestSocket:  c.PeerSocketID(),
		},
		Payload: cell.Payload,
	}
}
