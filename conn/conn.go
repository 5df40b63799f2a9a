package conn

import (
	"net"
	"sync"
	"time"

	"github.com/xtaci/srt-go/errs"
	"github.com/xtaci/srt-go/losslist"
	"github.com/xtaci/srt-go/rcvbuf"
	"github.com/xtaci/srt-go/scheduler"
	"github.com/xtaci/srt-go/seq"
	"github.com/xtaci/srt-go/sndbuf"
	"github.com/xtaci/srt-go/stats"
	"github.com/xtaci/srt-go/tsbpd"
	"github.com/xtaci/srt-go/xcrypto"
)

// Config bundles the options a Conn is constructed from (a subset of the
// root package's full PRE/POST option table, just what the state machine
// and buffers need directly).
type Config struct {
	SocketID     uint32
	ChunkSize    int
	SndBufCap    int
	RcvBufCap    int
	InitialSeq   uint32
	TSBPDEnabled bool
	LatencyUs    int64
	OutOfOrder   bool
	NAKMinUs     int64
	PBKeyLenByte int
	Enforced     bool
}

// Conn is one connection's full state: buffers, loss tracking, time
// base, crypto, and the RTT/EXP timers, behind the lifecycle state
// machine of state.go. Field grouping and the refcount-by-handle
// lifecycle model spec §9's "socket table is the lifetime authority."
type Conn struct {
	mu sync.Mutex

	cfg   Config
	state stateBox

	peer net.Addr

	snd *sndbuf.Buffer
	rcv *rcvbuf.Buffer
	loss *losslist.List
	tb   *tsbpd.TimeBase
	km   *xcrypto.KeyManager
	rtt     *RTTEstimator
	cnt     stats.Counters
	bitrate *stats.BitrateEstimator
	arrival *stats.ArrivalRateFilter

	rejectReason errs.RejectReason
	lastErr      error

	lastAckPoint    uint32
	lastAckPointSet bool

	hs handshake

	sched *scheduler.Scheduler

	nextMsgNo uint32

	closed bool
}

// New constructs a connection in the Init state.
func New(cfg Config, nowUs int64) *Conn {
	return &Conn{
		cfg:  cfg,
		snd:  sndbuf.New(cfg.SndBufCap, cfg.InitialSeq),
		rcv:  rcvbuf.New(cfg.RcvBufCap, cfg.InitialSeq, cfg.OutOfOrder),
		loss: losslist.New(),
		tb:   tsbpd.New(nowUs, cfg.LatencyUs),
		km:      xcrypto.NewKeyManager(cfg.PBKeyLenByte),
		rtt:     NewRTTEstimator(100_000, cfg.NAKMinUs),
		bitrate: stats.NewBitrateEstimator(),
		arrival: stats.NewArrivalRateFilter(),
	}
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() State { return c.state.Load() }

// SocketID returns this connection's local socket identifier, for the
// multiplexer's routing table and epoll registration.
func (c *Conn) SocketID() uint32 { return c.cfg.SocketID }

// SetPeer records the validated peer address once a handshake completes.
func (c *Conn) SetPeer(peer net.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peer = peer
}

// Peer returns the connection's peer address, or nil before a handshake
// completes.
func (c *Conn) Peer() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// Open transitions a fresh connection from Init to Opened, the step
// create_socket leaves every new connection in.
func (c *Conn) Open() { c.state.CAS(Init, Opened) }

// BeginConnect moves an Opened connection into Connecting, the state a
// caller's connect() puts it in while the handshake is outstanding.
func (c *Conn) BeginConnect() bool { return c.state.CAS(Opened, Connecting) }

// BeginListen moves an Opened connection into Listening.
func (c *Conn) BeginListen() bool { return c.state.CAS(Opened, Listening) }

// CompleteConnect moves a Connecting connection into Connected once the
// five-way handshake finishes successfully.
func (c *Conn) CompleteConnect() bool { return c.state.CAS(Connecting, Connected) }

// Reject moves a Connecting connection to Broken and records why, for
// get_rejectreason.
func (c *Conn) Reject(reason errs.RejectReason, err error) {
	c.mu.Lock()
	c.rejectReason = reason
	c.lastErr = err
	c.mu.Unlock()
	c.state.Store(Broken)
}

// RejectReason returns the rejection reason recorded by Reject, or
// RejUnknown if the connection was never rejected.
func (c *Conn) RejectReason() errs.RejectReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejectReason
}

// LastError returns the most recently recorded error for this
// connection's owning thread, per spec §7's "each thread stores its own
// last error" (simplified here to one slot per connection, since the
// root package serializes API calls per socket handle).
func (c *Conn) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// MarkBroken transitions a live connection to Broken on a fatal protocol
// error or EXP timeout.
func (c *Conn) MarkBroken(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.state.Store(Broken)
}

// BeginClose moves a Connected connection to Closing; it becomes Closed
// once the last pending read drains (the root package's recv_message
// path calls FinishClose after that).
func (c *Conn) BeginClose() {
	c.state.CAS(Connected, Closing)
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// FinishClose moves a Closing connection to Closed.
func (c *Conn) FinishClose() { c.state.CAS(Closing, Closed) }

// Release marks a Closed or Broken connection NonExist once the
// application has dropped its last handle.
func (c *Conn) Release() {
	s := c.state.Load()
	if s == Closed || s == Broken {
		c.state.Store(NonExist)
	}
}

// Send enqueues data for transmission, splitting and assigning sequence
// numbers via the send buffer. It returns an Again-class error if the
// buffer has no room.
func (c *Conn) Send(data []byte, inOrder bool, ttlMs int64, nowUs int64) (int, error) {
	if c.State() != Connected {
		return 0, errs.New(errs.Connection, errs.MinorBroken, "send on a non-connected socket")
	}

	c.mu.Lock()
	msgNo := c.nextMsgNo
	c.nextMsgNo++
	c.mu.Unlock()

	firstSeq, _, ok := c.snd.Add(data, c.cfg.ChunkSize, msgNo, inOrder, ttlMs, nowUs)
	if !ok {
		return 0, errs.New(errs.Again, errs.MinorWriteWouldBlock, "send buffer full")
	}

	if sched := c.scheduler(); sched != nil {
		n := (len(data) + c.cfg.ChunkSize - 1) / c.cfg.ChunkSize
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			sched.Put(c.cfg.SocketID, seq.Inc(firstSeq, uint32(i)), scheduler.Regular, time.UnixMicro(nowUs))
		}
	}
	return len(data), nil
}

// BindScheduler attaches the send scheduler a multiplexer drives its
// sender thread from; Send arms a Regular task on it for every chunk it
// hands to the send buffer. A Conn constructed without one (e.g. in
// isolation in tests) simply never schedules a transmission.
func (c *Conn) BindScheduler(s *scheduler.Scheduler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sched = s
}

func (c *Conn) scheduler() *scheduler.Scheduler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sched
}

// OnAckAck folds an RTT sample (now - ACK send time) into the RTT
// estimator, per spec §4.I.
func (c *Conn) OnAckAck(rttSampleUs int64) {
	c.rtt.AddSample(rttSampleUs)
}

// RTTEstimator exposes the connection's RTT/RTTVar/NAK-period/EXP timer
// state for the sender/receiver loops to consult.
func (c *Conn) RTTEstimator() *RTTEstimator { return c.rtt }

// SndBuf, RcvBuf, LossList, TimeBase, KeyManager, and Counters expose the
// connection's owned subsystems to the mux/scheduler wiring without
// forcing every caller through Conn's own (necessarily partial) API.
func (c *Conn) SndBuf() *sndbuf.Buffer          { return c.snd }
func (c *Conn) RcvBuf() *rcvbuf.Buffer          { return c.rcv }
func (c *Conn) LossList() *losslist.List        { return c.loss }
func (c *Conn) TimeBase() *tsbpd.TimeBase       { return c.tb }
func (c *Conn) KeyManager() *xcrypto.KeyManager { return c.km }
func (c *Conn) Counters() *stats.Counters       { return &c.cnt }
func (c *Conn) Bitrate() *stats.BitrateEstimator { return c.bitrate }
func (c *Conn) Arrival() *stats.ArrivalRateFilter { return c.arrival }

// EnforceEncryptionOK reports whether the negotiated KM state satisfies
// this side's enforced-encryption policy (spec §4.I): enforced
// connections must have produced usable session keys.
func (c *Conn) EnforceEncryptionOK(kmSecured bool) bool {
	if !c.cfg.Enforced {
		return true
	}
	return kmSecured
}
