// Package conn implements the connection state machine of spec §4.I: the
// five-way handshake (induction/conclusion, caller/listener/rendezvous),
// KM exchange hooks, RTT/RTTVar/NAK-period/EXP timer bookkeeping, and
// shutdown semantics. The state transitions and refcounted-handle shape
// follow kcp-go's UDPSession/Listener split in sess.go, generalized from
// KCP's single "session exists or doesn't" model to the richer
// INIT/OPENED/LISTENING/CONNECTING/CONNECTED/CLOSING/CLOSED/BROKEN/
// NONEXIST lifecycle spec §4.I names.
package conn

import "sync/atomic"

// State is one of the connection lifecycle states of spec §4.I.
type State int32

const (
	Init State = iota
	Opened
	Listening
	Connecting
	Connected
	Closing
	Closed
	Broken
	NonExist
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Opened:
		return "opened"
	case Listening:
		return "listening"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Broken:
		return "broken"
	case NonExist:
		return "nonexist"
	default:
		return "unknown"
	}
}

// stateBox wraps an atomic State so every field access anywhere in the
// package goes through the same load/store pair rather than a bare
// int32, matching spec §5's "atomic counters used for values read from
// outside their owning mutex."
type stateBox struct{ v int32 }

func (b *stateBox) Load() State       { return State(atomic.LoadInt32(&b.v)) }
func (b *stateBox) Store(s State)     { atomic.StoreInt32(&b.v, int32(s)) }
func (b *stateBox) CAS(old, new State) bool {
	return atomic.CompareAndSwapInt32(&b.v, int32(old), int32(new))
}
