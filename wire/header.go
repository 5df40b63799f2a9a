// Package wire implements the on-wire packet codec described in spec §3 and
// §4.C: symmetric encode/decode of the data and control header variants,
// control-vs-data discrimination, and endian normalization. All multi-byte
// fields are big-endian network byte order; the encode/decode helpers below
// mirror the bit-twiddling style of kcp-go's ikcp_encode32u/ikcp_decode32u
// pair, widened from little-endian 32-bit fields to the mixed bitfield
// layout SRT packets use.
package wire

import "encoding/binary"

// HeaderSize is the fixed 16-byte header shared by every packet, data or
// control.
const HeaderSize = 16

// Packet boundary flags (2 bits), spec §3.
const (
	PBMiddle = 0 // MIDDLE: interior fragment of a multi-packet message
	PBLast   = 1 // LAST: final fragment
	PBFirst  = 2 // FIRST: opening fragment
	PBSolo   = 3 // SOLO: the whole message fits in one packet
)

// Crypto key flags (2 bits), spec §3.
const (
	KeyNone = 0
	KeyEven = 1
	KeyOdd  = 2
)

// ControlType enumerates the control message types of spec §4.C.
type ControlType uint16

const (
	CtrlHandshake ControlType = 0
	CtrlKeepalive ControlType = 1
	CtrlACK       ControlType = 2
	CtrlLossReport ControlType = 3
	CtrlCongestionWarning ControlType = 4
	CtrlShutdown  ControlType = 5
	CtrlACKACK    ControlType = 6
	CtrlDropReq   ControlType = 7
	CtrlPeerError ControlType = 8
	CtrlExtension ControlType = 0x7FFF
)

// Extension subtypes carried in an Extension control message's 16-bit
// subtype field.
const (
	ExtHSREQ    = 1
	ExtHSRSP    = 2
	ExtKMREQ    = 3
	ExtKMRSP    = 4
	ExtSID      = 5
	ExtCONGCTL  = 6
	ExtFILTER   = 7
	ExtGROUP    = 8
)

// putU16/putU32/getU16/getU32 center the big-endian conversions so every
// call site reads the same whether it is encoding a seqno, a timestamp, or
// a control-specific field.
func putU16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func putU32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func getU16(b []byte) uint16    { return binary.BigEndian.Uint16(b) }
func getU32(b []byte) uint32    { return binary.BigEndian.Uint32(b) }

// IsControl reports whether the first bit of a raw, still-wire-order
// packet marks it as a control packet.
func IsControl(raw []byte) bool {
	return len(raw) >= HeaderSize && raw[0]&0x80 != 0
}
