package wire

import "fmt"

// ControlHeader is the decoded form of a control packet's 16-byte header
// (spec §3): [0]=1, [1..15]=type, [16..31]=subtype/extension, [32..63]=
// type-specific, [64..95]=timestamp_us, [96..127]=dest_socket_id.
type ControlHeader struct {
	Type         ControlType
	SubType      uint16 // extension subtype when Type == CtrlExtension, else type-specific flags
	TypeSpecific uint32
	TimestampUs  uint32
	DestSocket   uint32
}

// ControlPacket is a decoded control packet: header plus the type-specific
// body bytes that follow the 16-byte header.
type ControlPacket struct {
	ControlHeader
	Body []byte
}

// EncodeControl writes the 16-byte control header plus body into buf,
// reusing its backing array when there is room.
func EncodeControl(hdr ControlHeader, body []byte, buf []byte) []byte {
	if cap(buf) < HeaderSize+len(body) {
		buf = make([]byte, HeaderSize+len(body))
	} else {
		buf = buf[:HeaderSize+len(body)]
	}

	w0 := uint32(1)<<31 | uint32(hdr.Type&0x7FFF)<<16 | uint32(hdr.SubType)
	putU32(buf[0:4], w0)
	putU32(buf[4:8], hdr.TypeSpecific)
	putU32(buf[8:12], hdr.TimestampUs)
	putU32(buf[12:16], hdr.DestSocket&0x00FFFFFF)

	copy(buf[HeaderSize:], body)
	return buf
}

// DecodeControl parses a wire-format control packet. raw must already be
// known to be a control packet (IsControl(raw) == true).
func DecodeControl(raw []byte) (ControlPacket, error) {
	if len(raw) < HeaderSize {
		return ControlPacket{}, fmt.Errorf("wire: short control packet (%d bytes)", len(raw))
	}

	w0 := getU32(raw[0:4])
	hdr := ControlHeader{
		Type:         ControlType((w0 >> 16) & 0x7FFF),
		SubType:      uint16(w0 & 0xFFFF),
		TypeSpecific: getU32(raw[4:8]),
		TimestampUs:  getU32(raw[8:12]),
		DestSocket:   getU32(raw[12:16]) & 0x00FFFFFF,
	}

	return ControlPacket{ControlHeader: hdr, Body: raw[HeaderSize:]}, nil
}

// --- Handshake ---

// HandshakeBody is the fixed-size handshake control payload (induction,
// conclusion, and rendezvous all share this layout; extensions ride in
// TLV blocks appended after it during conclusion).
type HandshakeBody struct {
	Version        uint32
	EncryptionType uint32 // negotiated cipher family, 0 if none
	InitialSeq     uint32
	MaxPacketSize  uint32
	MaxFlowWindow  uint32
	HandshakeType  uint32 // induction/conclusion/... code, or reject reason when negative
	SocketID       uint32
	SynCookie      uint32
	PeerIP         [16]byte // IPv4-mapped or IPv6, network order
}

const handshakeBodySize = 4*8 + 16

func EncodeHandshake(h HandshakeBody) []byte {
	buf := make([]byte, handshakeBodySize)
	putU32(buf[0:4], h.Version)
	putU32(buf[4:8], h.EncryptionType)
	putU32(buf[8:12], h.InitialSeq)
	putU32(buf[12:16], h.MaxPacketSize)
	putU32(buf[16:20], h.MaxFlowWindow)
	putU32(buf[20:24], h.HandshakeType)
	putU32(buf[24:28], h.SocketID)
	putU32(buf[28:32], h.SynCookie)
	copy(buf[32:48], h.PeerIP[:])
	return buf
}

func DecodeHandshake(body []byte) (HandshakeBody, error) {
	if len(body) < handshakeBodySize {
		return HandshakeBody{}, fmt.Errorf("wire: short handshake body (%d bytes)", len(body))
	}
	var h HandshakeBody
	h.Version = getU32(body[0:4])
	h.EncryptionType = getU32(body[4:8])
	h.InitialSeq = getU32(body[8:12])
	h.MaxPacketSize = getU32(body[12:16])
	h.MaxFlowWindow = getU32(body[16:20])
	h.HandshakeType = getU32(body[20:24])
	h.SocketID = getU32(body[24:28])
	h.SynCookie = getU32(body[28:32])
	copy(h.PeerIP[:], body[32:48])
	return h, nil
}

// --- ACK ---

// AckBody is the type-specific body of a full ACK (light ACKs carry only
// the header's TypeSpecific field, the last-acknowledged sequence number,
// and omit this body).
type AckBody struct {
	RTTUs        uint32
	RTTVarUs     uint32
	AvailBufSize uint32
	PktRecvRate  uint32
	EstBandwidth uint32
}

const ackBodySize = 4 * 5

func EncodeAck(a AckBody) []byte {
	buf := make([]byte, ackBodySize)
	putU32(buf[0:4], a.RTTUs)
	putU32(buf[4:8], a.RTTVarUs)
	putU32(buf[8:12], a.AvailBufSize)
	putU32(buf[12:16], a.PktRecvRate)
	putU32(buf[16:20], a.EstBandwidth)
	return buf
}

func DecodeAck(body []byte) (AckBody, error) {
	if len(body) < ackBodySize {
		return AckBody{}, fmt.Errorf("wire: short ACK body (%d bytes)", len(body))
	}
	var a AckBody
	a.RTTUs = getU32(body[0:4])
	a.RTTVarUs = getU32(body[4:8])
	a.AvailBufSize = getU32(body[8:12])
	a.PktRecvRate = getU32(body[12:16])
	a.EstBandwidth = getU32(body[16:20])
	return a, nil
}

// --- Loss report (NAK) ---

// LossEntry is one element of a loss report: either a single sequence
// number (Hi == Lo) or an inclusive range (Lo|0x80000000, Hi), mirroring
// spec §4.C's compressed range encoding.
type LossEntry struct {
	Lo uint32
	Hi uint32
}

// EncodeLossReport packs entries into the compressed wire form, collapsing
// any single-sequence entry to one word and any range to a pair.
func EncodeLossReport(entries []LossEntry) []byte {
	n := 0
	for _, e := range entries {
		if e.Lo == e.Hi {
			n++
		} else {
			n += 2
		}
	}
	buf := make([]byte, 4*n)
	off := 0
	for _, e := range entries {
		if e.Lo == e.Hi {
			putU32(buf[off:off+4], e.Lo&0x7FFFFFFF)
			off += 4
		} else {
			putU32(buf[off:off+4], e.Lo|0x80000000)
			putU32(buf[off+4:off+8], e.Hi&0x7FFFFFFF)
			off += 8
		}
	}
	return buf
}

// DecodeLossReport expands the compressed wire form back into entries.
func DecodeLossReport(body []byte) ([]LossEntry, error) {
	if len(body)%4 != 0 {
		return nil, fmt.Errorf("wire: loss report not word-aligned (%d bytes)", len(body))
	}
	var entries []LossEntry
	for off := 0; off < len(body); off += 4 {
		w := getU32(body[off : off+4])
		if w&0x80000000 != 0 {
			if off+8 > len(body) {
				return nil, fmt.Errorf("wire: truncated loss range at offset %d", off)
			}
			hi := getU32(body[off+4 : off+8])
			entries = append(entries, LossEntry{Lo: w & 0x7FFFFFFF, Hi: hi})
			off += 4
		} else {
			entries = append(entries, LossEntry{Lo: w, Hi: w})
		}
	}
	return entries, nil
}

// --- Extension TLVs (HSREQ/HSRSP/KMREQ/KMRSP/SID/CONGCTL/FILTER/GROUP) ---

// ExtBlock is one TLV block inside an Extension control message's body:
// a 16-bit subtype, a 16-bit length in 32-bit words, and that many words
// of payload.
type ExtBlock struct {
	SubType uint16
	Payload []byte // length is always a multiple of 4
}

// EncodeExtBlocks concatenates TLV blocks into an Extension control body.
func EncodeExtBlocks(blocks []ExtBlock) []byte {
	size := 0
	for _, b := range blocks {
		size += 4 + len(b.Payload)
	}
	buf := make([]byte, size)
	off := 0
	for _, b := range blocks {
		putU16(buf[off:off+2], b.SubType)
		putU16(buf[off+2:off+4], uint16(len(b.Payload)/4))
		off += 4
		copy(buf[off:off+len(b.Payload)], b.Payload)
		off += len(b.Payload)
	}
	return buf
}

// DecodeExtBlocks splits an Extension control body back into TLV blocks.
func DecodeExtBlocks(body []byte) ([]ExtBlock, error) {
	var blocks []ExtBlock
	off := 0
	for off < len(body) {
		if off+4 > len(body) {
			return nil, fmt.Errorf("wire: truncated extension TLV header at offset %d", off)
		}
		subType := getU16(body[off : off+2])
		words := int(getU16(body[off+2 : off+4]))
		off += 4
		length := words * 4
		if off+length > len(body) {
			return nil, fmt.Errorf("wire: truncated extension TLV payload at offset %d", off)
		}
		blocks = append(blocks, ExtBlock{SubType: subType, Payload: body[off : off+length]})
		off += length
	}
	return blocks, nil
}

// HSExtBody is the HSREQ/HSRSP handshake extension payload: SRT version,
// flag bitmap (TSBPD send/recv, crypto, periodic NAK report, rejection
// reason, stream/message API), and receiver TSBPD delay in milliseconds
// packed with the sender's in a single 32-bit word per the peer direction
// that produced the block.
type HSExtBody struct {
	Version   uint32
	Flags     uint32
	RecvDelay uint16
	SendDelay uint16
}

func EncodeHSExt(h HSExtBody) []byte {
	buf := make([]byte, 12)
	putU32(buf[0:4], h.Version)
	putU32(buf[4:8], h.Flags)
	putU16(buf[8:10], h.RecvDelay)
	putU16(buf[10:12], h.SendDelay)
	return buf
}

func DecodeHSExt(payload []byte) (HSExtBody, error) {
	if len(payload) < 12 {
		return HSExtBody{}, fmt.Errorf("wire: short HSREQ/HSRSP block (%d bytes)", len(payload))
	}
	var h HSExtBody
	h.Version = getU32(payload[0:4])
	h.Flags = getU32(payload[4:8])
	h.RecvDelay = getU16(payload[8:10])
	h.SendDelay = getU16(payload[10:12])
	return h, nil
}

// KMExtBody wraps an opaque key-material message (spec's KM exchange is
// delegated to the crypto collaborator; wire only ships its bytes inside
// a KMREQ/KMRSP extension block).
type KMExtBody struct {
	Message []byte
}

func EncodeKMExt(k KMExtBody) []byte { return append([]byte(nil), k.Message...) }
func DecodeKMExt(payload []byte) KMExtBody {
	return KMExtBody{Message: append([]byte(nil), payload...)}
}
