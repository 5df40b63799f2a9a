package wire

import (
	"fmt"
)

// DataHeader is the decoded form of a data packet's 16-byte header (spec
// §3): [0..31]=seqno (MSB=0), [32..33]=PB, [34]=inorder, [35..36]=key,
// [37]=rexmit, [38..63]=msgno, [64..95]=timestamp_us, [96..127]=dest.
type DataHeader struct {
	Seq        uint32
	PB         uint8 // 2-bit packet boundary flag
	InOrder    bool
	Key        uint8 // 2-bit crypto key flag
	Retransmit bool
	MsgNo      uint32 // 26 bits
	TimestampUs uint32
	DestSocket uint32
}

// DataPacket is a decoded data packet: header plus payload, sharing the
// caller's backing array so Encode/Decode round-trip the payload verbatim.
type DataPacket struct {
	DataHeader
	Payload []byte
}

// EncodeData writes the 16-byte header for hdr into buf[:16] and appends
// payload, returning the full wire packet. buf is reused if it has
// sufficient capacity.
func EncodeData(hdr DataHeader, payload []byte, buf []byte) []byte {
	if cap(buf) < HeaderSize+len(payload) {
		buf = make([]byte, HeaderSize+len(payload))
	} else {
		buf = buf[:HeaderSize+len(payload)]
	}

	seqField := hdr.Seq & 0x7FFFFFFF // MSB=0 marks a data packet
	putU32(buf[0:4], seqField)

	var w2 uint32
	w2 |= uint32(hdr.PB&0x3) << 30
	if hdr.InOrder {
		w2 |= 1 << 29
	}
	w2 |= uint32(hdr.Key&0x3) << 27
	if hdr.Retransmit {
		w2 |= 1 << 26
	}
	w2 |= hdr.MsgNo & 0x03FFFFFF
	putU32(buf[4:8], w2)

	putU32(buf[8:12], hdr.TimestampUs)
	putU32(buf[12:16], hdr.DestSocket&0x00FFFFFF)

	copy(buf[HeaderSize:], payload)
	return buf
}

// DecodeData parses a wire-format data packet. raw must already be known to
// be a data packet (IsControl(raw) == false). The returned Payload aliases
// raw; callers that need to retain it across a buffer reuse must copy.
func DecodeData(raw []byte) (DataPacket, error) {
	if len(raw) < HeaderSize {
		return DataPacket{}, fmt.Errorf("wire: short data packet (%d bytes)", len(raw))
	}

	w0 := getU32(raw[0:4])
	w2 := getU32(raw[4:8])

	hdr := DataHeader{
		Seq:         w0 & 0x7FFFFFFF,
		PB:          uint8((w2 >> 30) & 0x3),
		InOrder:     w2&(1<<29) != 0,
		Key:         uint8((w2 >> 27) & 0x3),
		Retransmit:  w2&(1<<26) != 0,
		MsgNo:       w2 & 0x03FFFFFF,
		TimestampUs: getU32(raw[8:12]),
		DestSocket:  getU32(raw[12:16]) & 0x00FFFFFF,
	}

	return DataPacket{DataHeader: hdr, Payload: raw[HeaderSize:]}, nil
}
