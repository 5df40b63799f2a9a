// Package config implements the typed socket-option table of spec §6: a
// flat set of named options, each either PRE (fixed once connect/listen
// starts) or POST (mutable for the life of the socket), some read-only.
// The flat table-behind-a-mutex shape follows kcp-go's UDPSession, which
// exposes the same idea as a set of individual SetXxx methods guarded by
// sess.mu (sess.go SetWindowSize/SetMtu/SetNoDelay/SetDSCP); this package
// generalizes that into one name-indexed table so the root package can
// implement a single set_option/get_option pair instead of one method per
// option.
package config

import (
	"fmt"
	"sync"
)

// Option names one of the socket options spec §6 lists (representative,
// not exhaustive).
type Option int

const (
	MSS Option = iota
	SndBuf
	RcvBuf
	FC
	Latency
	TSBPDMode
	TLPktDrop
	NAKReport
	ConnTimeo
	Passphrase
	PBKeyLen
	EnforcedEncryption
	MessageAPI
	PayloadSize
	SndSyn
	RcvSyn
	SndTimeo
	RcvTimeo
	LossMaxTTL
	KMState
	SndKMState
	RcvKMState
	StreamID
)

func (o Option) String() string {
	switch o {
	case MSS:
		return "MSS"
	case SndBuf:
		return "SNDBUF"
	case RcvBuf:
		return "RCVBUF"
	case FC:
		return "FC"
	case Latency:
		return "LATENCY"
	case TSBPDMode:
		return "TSBPDMODE"
	case TLPktDrop:
		return "TLPKTDROP"
	case NAKReport:
		return "NAKREPORT"
	case ConnTimeo:
		return "CONNTIMEO"
	case Passphrase:
		return "PASSPHRASE"
	case PBKeyLen:
		return "PBKEYLEN"
	case EnforcedEncryption:
		return "ENFORCEDENCRYPTION"
	case MessageAPI:
		return "MESSAGEAPI"
	case PayloadSize:
		return "PAYLOADSIZE"
	case SndSyn:
		return "SNDSYN"
	case RcvSyn:
		return "RCVSYN"
	case SndTimeo:
		return "SNDTIMEO"
	case RcvTimeo:
		return "RCVTIMEO"
	case LossMaxTTL:
		return "LOSSMAXTTL"
	case KMState:
		return "KMSTATE"
	case SndKMState:
		return "SNDKMSTATE"
	case RcvKMState:
		return "RCVKMSTATE"
	case StreamID:
		return "STREAMID"
	default:
		return "UNKNOWN"
	}
}

// Phase is PRE or POST: whether an option may still be changed once a
// socket has started connecting/listening.
type Phase int

const (
	Pre Phase = iota
	Post
)

// phase and readOnly classify every option; KMSTATE/SNDKMSTATE/RCVKMSTATE
// are read-only diagnostics, never settable.
var phase = map[Option]Phase{
	MSS:                Pre,
	SndBuf:             Pre,
	RcvBuf:             Pre,
	FC:                 Pre,
	Latency:            Pre,
	TSBPDMode:          Pre,
	TLPktDrop:          Post,
	NAKReport:          Pre,
	ConnTimeo:          Pre,
	Passphrase:         Pre,
	PBKeyLen:           Pre,
	EnforcedEncryption: Pre,
	MessageAPI:         Pre,
	PayloadSize:        Pre,
	SndSyn:             Post,
	RcvSyn:             Post,
	SndTimeo:           Post,
	RcvTimeo:           Post,
	LossMaxTTL:         Post,
	KMState:            Post,
	SndKMState:         Post,
	RcvKMState:         Post,
	StreamID:           Pre,
}

var readOnly = map[Option]bool{
	KMState:    true,
	SndKMState: true,
	RcvKMState: true,
}

// PhaseOf reports whether opt is PRE or POST.
func PhaseOf(opt Option) Phase { return phase[opt] }

// IsReadOnly reports whether opt can only be read, never set.
func IsReadOnly(opt Option) bool { return readOnly[opt] }

// KeyMaterialState enumerates the values KMSTATE/SNDKMSTATE/RCVKMSTATE report.
type KeyMaterialState int

const (
	KMSUnsecured KeyMaterialState = iota
	KMSSecuring
	KMSSecured
	KMSNoSecret
	KMSBadSecret
)

// defaults mirrors spec §6's named defaults (MSS 1500, etc.); New copies
// this table as-is. An option absent from it has no value until Set, and
// the typed getters report the zero value for it.
var defaults = map[Option]interface{}{
	MSS:         1500,
	SndBuf:      8192,
	RcvBuf:      8192,
	FC:          25600,
	Latency:     int64(120_000),
	PayloadSize: 1316,
	ConnTimeo:   int64(3_000_000),
	LossMaxTTL:  0,
	SndSyn:      true,
	RcvSyn:      true,
	TSBPDMode:   true,
	MessageAPI:  true,
}

// Options is one socket's mutable option table, guarded by mu exactly as
// kcp-go's UDPSession guards its tunables with sess.mu.
type Options struct {
	mu     sync.Mutex
	values map[Option]interface{}
	locked bool // true once connect/listen has started: PRE options reject further Set calls
}

// New returns an option table seeded with spec §6's defaults.
func New() *Options {
	o := &Options{values: make(map[Option]interface{}, len(defaults))}
	for k, v := range defaults {
		o.values[k] = v
	}
	return o
}

// Lock freezes every PRE option in place, called once a connect/listen
// attempt begins (spec §6: "PRE options fixed after connect").
func (o *Options) Lock() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.locked = true
}

// Set installs value for opt, returning an error if opt is read-only or
// is a PRE option on an already-locked socket.
func (o *Options) Set(opt Option, value interface{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if IsReadOnly(opt) {
		return fmt.Errorf("config: %s is read-only", opt)
	}
	if o.locked && PhaseOf(opt) == Pre {
		return fmt.Errorf("config: %s is a PRE option and cannot change after connect/listen", opt)
	}
	o.values[opt] = value
	return nil
}

// Get returns opt's current value and whether it has one, either a
// default installed by New or a value installed by Set.
func (o *Options) Get(opt Option) (interface{}, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.values[opt]
	return v, ok
}

// GetInt, GetInt64, GetBool, GetString are typed convenience accessors
// for the call sites in the root package that know an option's Go type.
func (o *Options) GetInt(opt Option) int {
	v, _ := o.Get(opt)
	if n, ok := v.(int); ok {
		return n
	}
	return 0
}

func (o *Options) GetInt64(opt Option) int64 {
	v, _ := o.Get(opt)
	if n, ok := v.(int64); ok {
		return n
	}
	return 0
}

func (o *Options) GetBool(opt Option) bool {
	v, _ := o.Get(opt)
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}

func (o *Options) GetString(opt Option) string {
	v, _ := o.Get(opt)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
