package conn

import (
	"crypto/md5"
	"encoding/binary"
	"net"
	"time"
)

// Handshake type codes carried in wire.HandshakeBody.HandshakeType. Values
// mirror the real protocol's induction/wave-a-hand/conclusion trio so a
// negative (as uint32, all-ones-prefixed) value unambiguously means
// "conclusion" without colliding with any real version number.
const (
	HSTypeWaveAHand  uint32 = 0
	HSTypeInduction  uint32 = 1
	HSTypeConclusion uint32 = 0xFFFFFFFF // -1 as int32
)

// Version5 is the only handshake version this implementation completes a
// connection with; version 4 (the bare induction trap value a caller
// sends first) is only ever recognized, never negotiated further.
const Version5 uint32 = 5

// coarseTimeWindow buckets the cookie's time component so it stays
// stable across the handful of retries a single handshake attempt makes.
const coarseTimeWindow = 60 * time.Second

// MakeCookie derives a SYN cookie from the peer address and the current
// coarse time window, the way a listener answers an INDUCTION: spec §4.I
// specifies MD5(peer_addr_as_string || coarse_time) truncated.
func MakeCookie(peer net.Addr, nowUs int64) uint32 {
	bucket := nowUs / int64(coarseTimeWindow/time.Microsecond)

	h := md5.New()
	h.Write([]byte(peer.String()))
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], uint64(bucket))
	h.Write(tb[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint32(sum[:4])
}

// VerifyCookie recomputes the cookie for peer across the current and
// immediately preceding coarse-time windows (covering a handshake whose
// reply crosses a window boundary) and reports whether got matches
// either.
func VerifyCookie(peer net.Addr, nowUs int64, got uint32) bool {
	if MakeCookie(peer, nowUs) == got {
		return true
	}
	prevUs := nowUs - int64(coarseTimeWindow/time.Microsecond)
	return MakeCookie(peer, prevUs) == got
}

// RendezvousRole is the outcome of comparing both sides' cookies during a
// rendezvous handshake.
type RendezvousRole int

const (
	RoleInitiator RendezvousRole = iota
	RoleResponder
	RoleTie // rejected: spec §4.I, "a tie is rejected"
)

// ResolveRendezvous compares the local and peer cookies lexicographically
// as the two parties exchanged them in WAVEAHAND, electing the
// lexicographically larger one as INITIATOR.
func ResolveRendezvous(localCookie, peerCookie uint32) RendezvousRole {
	switch {
	case localCookie > peerCookie:
		return RoleInitiator
	case localCookie < peerCookie:
		return RoleResponder
	default:
		return RoleTie
	}
}
