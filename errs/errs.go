// Package errs implements the error taxonomy of spec §7: a major/minor
// code pair carried by a typed error, wrapped with
// github.com/pkg/errors at I/O boundaries exactly as kcp-go's sess.go
// wraps io.ErrClosedPipe and ReadFrom/WriteTo failures with
// errors.WithStack.
package errs

import "github.com/pkg/errors"

// Major partitions errors into the seven classes spec §7 names.
type Major int

const (
	Setup Major = iota
	Connection
	SystemResource
	FileSystem
	NotSupported
	Again
	PeerError
)

func (m Major) String() string {
	switch m {
	case Setup:
		return "setup"
	case Connection:
		return "connection"
	case SystemResource:
		return "system-resource"
	case FileSystem:
		return "file-system"
	case NotSupported:
		return "not-supported"
	case Again:
		return "again"
	case PeerError:
		return "peer-error"
	default:
		return "unknown"
	}
}

// Minor enumerates the specific conditions within a Major class. Values
// are only meaningfully compared within the same Major.
type Minor int

const (
	// Setup minors.
	MinorRejectTimeout Minor = iota
	MinorRejectCookie
	MinorRejectVersion
	MinorRejectRogue
	MinorRejectSecurity
	MinorRejectClosed
	MinorRejectBacklog
	MinorRejectCollisionMessageAPI
	MinorRejectCollisionCongCtl
	MinorRejectCollisionFilter
	MinorRejectCollisionGroup
	MinorRejectBadSecret
	MinorRejectPeerVersionTooOld

	// Connection minors.
	MinorBroken
	MinorNonExistent

	// System minors.
	MinorThreadCreate
	MinorMemory
	MinorObjectAlloc

	// API misuse minors.
	MinorNotBound
	MinorAlreadyConnected
	MinorInvalidSocketID
	MinorInvalidParam
	MinorInvalidMessageAPIUse
	MinorNotListening
	MinorRendezvousRules

	// Again minors.
	MinorWriteWouldBlock
	MinorReadWouldBlock
	MinorIOTimeout
	MinorEarlyCongestion

	// Peer-error minor: the body carries the peer's numeric code.
	MinorPeerReported
)

// Error is the taxonomy-carrying error type every API call that can fail
// returns, wrapped in a github.com/pkg/errors stack at the point of
// origin so Cause() always unwraps back to one of these.
type Error struct {
	Major Major
	Minor Minor
	// PeerCode carries the peer's reported numeric error when Major ==
	// PeerError.
	PeerCode int
	msg      string
}

func (e *Error) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return e.Major.String()
}

// New constructs a taxonomy error and immediately wraps it with a stack
// trace, matching the teacher's errors.WithStack(err) call-site pattern.
func New(major Major, minor Minor, msg string) error {
	return errors.WithStack(&Error{Major: major, Minor: minor, msg: msg})
}

// Peer constructs a peer-reported error carrying the peer's raw code.
func Peer(code int) error {
	return errors.WithStack(&Error{Major: PeerError, Minor: MinorPeerReported, PeerCode: code})
}

// As reports whether err (or anything it wraps) is an *Error, returning
// it for inspection.
func As(err error) (*Error, bool) {
	type causer interface{ Cause() error }
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		c, ok := err.(causer)
		if !ok {
			return nil, false
		}
		err = c.Cause()
	}
	return nil, false
}

// IsAgain reports whether err is an Again-class Error, the condition a
// non-blocking send/recv surfaces instead of suspending.
func IsAgain(err error) bool {
	e, ok := As(err)
	return ok && e.Major == Again
}

// RejectReason maps a Setup-class Minor to the numeric rejection reason
// surfaced through get_rejectreason (spec §7), fuller than the
// distilled spec's implicit enum per original_source/srtcore/common.h.
type RejectReason int

const (
	RejUnknown RejectReason = iota
	RejSystem
	RejPeer
	RejResource
	RejRogue
	RejBacklog
	RejIPNotBlocked
	RejClose
	RejVersion
	RejRdvCookie
	RejBadSecret
	RejUnsecure
	RejMessageAPI
	RejCongestion
	RejFilter
	RejGroup
	RejTimeout
)

// RejectReasonFor maps a Setup minor to its RejectReason; it returns
// RejUnknown for any Minor outside the Setup class.
func RejectReasonFor(m Minor) RejectReason {
	switch m {
	case MinorRejectTimeout:
		return RejTimeout
	case MinorRejectCookie:
		return RejRdvCookie
	case MinorRejectVersion:
		return RejVersion
	case MinorRejectRogue:
		return RejRogue
	case MinorRejectSecurity:
		return RejUnsecure
	case MinorRejectClosed:
		return RejClose
	case MinorRejectBacklog:
		return RejBacklog
	case MinorRejectCollisionMessageAPI:
		return RejMessageAPI
	case MinorRejectCollisionCongCtl:
		return RejCongestion
	case MinorRejectCollisionFilter:
		return RejFilter
	case MinorRejectCollisionGroup:
		return RejGroup
	case MinorRejectBadSecret:
		return RejBadSecret
	case MinorRejectPeerVersionTooOld:
		return RejVersion
	default:
		return RejUnknown
	}
}
