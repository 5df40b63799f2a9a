// Package mux implements the per-UDP-bind multiplexer of spec §4.J: one
// shared channel.Channel fans incoming datagrams out to per-connection
// receive paths keyed by (destination socket-id, peer address), runs the
// handshake's induction/conclusion exchange for newly arriving callers,
// and feeds an accept queue. The listener/session split and the
// string-keyed session map are grounded directly in kcp-go's
// sess.go Listener.packetInput, generalized from a single conv number to
// SRT's (socket-id, peer-address) pair.
package mux

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/xtaci/srt-go/channel"
	"github.com/xtaci/srt-go/conn"
	"github.com/xtaci/srt-go/errs"
	"github.com/xtaci/srt-go/rcvbuf"
	"github.com/xtaci/srt-go/scheduler"
	"github.com/xtaci/srt-go/seq"
	"github.com/xtaci/srt-go/wire"
)

// listenerSocketID is the well-known local socket id a listening Mux
// answers induction handshakes on; inductionDestID is the destination id
// a caller's very first induction packet carries, since it doesn't know
// the listener's id yet.
const (
	listenerSocketID uint32 = 1
	inductionDestID  uint32 = 0
)

// connKey identifies one connection's slot in the multiplexer's routing
// table.
type connKey struct {
	peer     string
	socketID uint32
}

// Mux owns one bound channel.Channel and every connection layered on top
// of it.
type Mux struct {
	ch *channel.Channel

	mu       sync.RWMutex
	conns    map[connKey]*conn.Conn
	connsByID map[uint32]*conn.Conn
	inboxes  map[connKey]chan wire.ControlPacket

	sched *scheduler.Scheduler
	epoll *Epoll

	chAccept chan *conn.Conn

	listenCfg   conn.Config
	listening   bool
	passphrase  string

	nextSocketID uint32 // atomic, handed out by newSocketID

	die     chan struct{}
	dieOnce sync.Once
}

// New wraps an already-bound channel.Channel.
func New(ch *channel.Channel) *Mux {
	m := &Mux{
		ch:        ch,
		conns:     make(map[connKey]*conn.Conn),
		connsByID: make(map[uint32]*conn.Conn),
		sched:     scheduler.New(),
		epoll:     NewEpoll(),
		chAccept:  make(chan *conn.Conn, 128),
		die:       make(chan struct{}),
	}
	go m.readLoop()
	go m.senderLoop()
	return m
}

// Epoll exposes the multiplexer's readiness registration set.
func (m *Mux) Epoll() *Epoll { return m.epoll }

// Close shuts the reader loop down and releases the underlying channel.
func (m *Mux) Close() error {
	m.dieOnce.Do(func() { close(m.die) })
	m.epoll.Close()
	m.sched.Close()
	return m.ch.Close()
}

// registerConn adds c to both routing tables (by peer+socket-id, and by
// socket-id alone for the sender thread, which only knows a task's
// connID) and binds the shared scheduler so Conn.Send arms tasks on it.
func (m *Mux) registerConn(key connKey, c *conn.Conn) {
	c.BindScheduler(m.sched)
	m.mu.Lock()
	m.conns[key] = c
	m.connsByID[c.SocketID()] = c
	m.mu.Unlock()
}

// senderLoop is the sender thread of spec §5: block on the scheduler's
// condition variable, pull the next due task, build and send one packet,
// re-arm. Grounded on kcp-go's sess.go SendLoop goroutine pattern
// (pop-one/send-one/loop), generalized from KCP's single implicit flush
// task to this transport's Regular/Retransmit/Control task kinds.
func (m *Mux) senderLoop() {
	for {
		socketID, seqNo, kind, ok := m.sched.Wait()
		if !ok {
			return
		}

		m.mu.RLock()
		c, exists := m.connsByID[socketID]
		m.mu.RUnlock()
		if !exists {
			continue
		}

		peer := c.Peer()
		if peer == nil {
			continue
		}

		if kind == scheduler.Control {
			if c.State() != conn.Connected {
				continue // closed/broken mid-flight: let the ACK timer die rather than re-arm
			}
			nowUs := time.Now().UnixMicro()

			if ack, ok := c.BuildACK(nowUs); ok {
				if err := m.send(ack, peer); err == nil {
					c.Counters().AddPktSentACK(1)
				}
			}

			if ranges := c.LossList().OnACKCycle(); len(ranges) > 0 {
				entries := make([]wire.LossEntry, len(ranges))
				for i, r := range ranges {
					entries[i] = wire.LossEntry{Lo: r.Lo, Hi: r.Hi}
				}
				nak := wire.ControlPacket{
					ControlHeader: wire.ControlHeader{Type: wire.CtrlLossReport, DestSocket: c.PeerSocketID()},
					Body:          wire.EncodeLossReport(entries),
				}
				if err := m.send(nak, peer); err == nil {
					c.Counters().AddPktSentNAK(1)
				}
			}

			// Piggyback retransmission scheduling on the same tick: pull
			// every send-buffer loss entry whose retransmit deadline has
			// passed and arm it on the scheduler.
			for {
				s, ok := c.SndBuf().PopLostSeq(nowUs)
				if !ok {
					break
				}
				m.sched.Put(socketID, s, scheduler.Retransmit, time.Now())
			}

			m.sched.Put(socketID, 0, scheduler.Control, time.Now().Add(conn.AckIntervalUs*time.Microsecond))
			continue
		}

		pkt, action := c.BuildDataPacket(seqNo, kind, time.Now().UnixMicro())
		switch action {
		case scheduler.ActionSend:
			buf := wire.EncodeData(pkt.DataHeader, pkt.Payload, nil)
			_ = m.ch.WritePacket(buf, peer, nil)
		case scheduler.ActionDrop:
			c.Counters().AddPktSndLoss(1)
		}
	}
}

func (m *Mux) newSocketID() uint32 {
	for {
		id := atomic.AddUint32(&m.nextSocketID, 1)
		if id != inductionDestID && id != listenerSocketID {
			return id
		}
	}
}

// Listen arms the multiplexer to accept inbound connections: templateCfg
// supplies the buffer sizing and TSBPD/encryption policy every accepted
// connection is constructed with (its SocketID field is overwritten per
// accepted peer).
func (m *Mux) Listen(templateCfg conn.Config, passphrase string) {
	m.mu.Lock()
	m.listenCfg = templateCfg
	m.listening = true
	m.passphrase = passphrase
	m.mu.Unlock()
}

// Accept blocks until a newly completed inbound connection is available.
func (m *Mux) Accept() (*conn.Conn, error) {
	select {
	case c, ok := <-m.chAccept:
		if !ok {
			return nil, errs.New(errs.Connection, errs.MinorNotListening, "multiplexer closed")
		}
		return c, nil
	case <-m.die:
		return nil, errs.New(errs.Connection, errs.MinorNotListening, "multiplexer closed")
	}
}

// CloseConn tears down one connection without closing the shared
// multiplexer: it best-effort notifies the peer with a shutdown control
// packet, withdraws the connection's pending scheduler tasks, and drops
// it from both routing tables, matching spec §5's "close withdraws all
// its tasks from the send scheduler... lets the background threads
// drain" for the case of one connection among many sharing a listener's
// mux (closing the mux itself is reserved for the listener socket that
// owns it).
func (m *Mux) CloseConn(c *conn.Conn) {
	if peer := c.Peer(); peer != nil {
		shutdown := wire.ControlPacket{
			ControlHeader: wire.ControlHeader{Type: wire.CtrlShutdown, DestSocket: c.PeerSocketID()},
		}
		_ = m.send(shutdown, peer)
	}

	m.sched.WithdrawConn(c.SocketID())
	m.epoll.Remove(c.SocketID())

	m.mu.Lock()
	delete(m.connsByID, c.SocketID())
	for key, cc := range m.conns {
		if cc == c {
			delete(m.conns, key)
			break
		}
	}
	m.mu.Unlock()
}

// Dial runs the caller side of the five-way handshake against peer and
// returns the resulting connection once it reaches Connected.
func (m *Mux) Dial(peer net.Addr, cfg conn.Config, passphrase string) (*conn.Conn, error) {
	cfg.SocketID = m.newSocketID()
	c := conn.New(cfg, 0)
	if passphrase != "" {
		c.SetPassphrase(passphrase)
	}
	c.Open()

	inbox := make(chan wire.ControlPacket, 8)
	key := connKey{peer: peer.String(), socketID: cfg.SocketID}
	m.registerConn(key, c)
	m.registerInbox(key, inbox)
	defer m.unregisterInbox(key)

	induction := c.BuildInduction(0)
	if err := m.send(induction, peer); err != nil {
		return nil, err
	}

	inductionReply, err := m.recvControl(inbox)
	if err != nil {
		return nil, err
	}

	if !c.BeginConnect() {
		return nil, errs.New(errs.Connection, errs.MinorBroken, "dial attempted from an unexpected state")
	}

	conclusion, err := c.BuildConclusion(peer, inductionReply, 0)
	if err != nil {
		return nil, err
	}
	if err := m.send(conclusion, peer); err != nil {
		return nil, err
	}

	conclusionReply, err := m.recvControl(inbox)
	if err != nil {
		return nil, err
	}
	if err := c.HandleConclusionReply(peer, conclusionReply); err != nil {
		return nil, err
	}

	m.epoll.Add(cfg.SocketID, EventReadable|EventWritable|EventError)
	m.sched.Put(cfg.SocketID, 0, scheduler.Control, time.Now().Add(conn.AckIntervalUs*time.Microsecond))
	return c, nil
}

func (m *Mux) send(pkt wire.ControlPacket, peer net.Addr) error {
	buf := wire.EncodeControl(pkt.ControlHeader, pkt.Body, nil)
	return m.ch.WritePacket(buf, peer, nil)
}

func (m *Mux) recvControl(inbox chan wire.ControlPacket) (wire.ControlPacket, error) {
	select {
	case pkt := <-inbox:
		return pkt, nil
	case <-m.die:
		return wire.ControlPacket{}, errs.New(errs.Connection, errs.MinorBroken, "multiplexer closed mid-handshake")
	}
}

// registerInbox routes handshake-stage control packets for a socket that
// has no fully accepted conn.Conn state yet tied to the demux table
// (Dial's own outstanding attempt). Accepted/steady-state connections
// are dispatched straight to their conn.Conn instead.
func (m *Mux) registerInbox(key connKey, ch chan wire.ControlPacket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inboxes == nil {
		m.inboxes = make(map[connKey]chan wire.ControlPacket)
	}
	m.inboxes[key] = ch
}

func (m *Mux) unregisterInbox(key connKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inboxes, key)
}

// readLoop is the reader thread of spec §5: block on UDP recv,
// demultiplex by (socket-id, peer address), and hand the packet to the
// right receive path.
func (m *Mux) readLoop() {
	buf := make([]byte, channel.MTULimit)
	for {
		select {
		case <-m.die:
			return
		default:
		}

		pkt, err := m.ch.ReadPacket(buf)
		if err != nil {
			return
		}
		if pkt.Data == nil {
			continue
		}
		m.dispatch(pkt)
	}
}

func (m *Mux) dispatch(pkt channel.Packet) {
	if !wire.IsControl(pkt.Data) {
		m.dispatchData(pkt)
		return
	}

	ctrl, err := wire.DecodeControl(pkt.Data)
	if err != nil {
		return
	}

	key := connKey{peer: pkt.Peer.String(), socketID: ctrl.DestSocket}

	m.mu.RLock()
	inbox, hasInbox := m.inboxes[key]
	m.mu.RUnlock()
	if hasInbox {
		select {
		case inbox <- ctrl:
		default:
		}
		return
	}

	if ctrl.Type == wire.CtrlHandshake && (ctrl.DestSocket == inductionDestID || ctrl.DestSocket == listenerSocketID) {
		m.handleListenerHandshake(pkt.Peer, ctrl)
		return
	}

	m.mu.RLock()
	c, ok := m.conns[key]
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.dispatchControlToConn(c, ctrl)
}

func (m *Mux) dispatchData(pkt channel.Packet) {
	dp, err := wire.DecodeData(pkt.Data)
	if err != nil {
		return
	}
	key := connKey{peer: pkt.Peer.String(), socketID: dp.DestSocket}
	m.mu.RLock()
	c, ok := m.conns[key]
	m.mu.RUnlock()
	if !ok {
		return
	}
	playUs := c.TimeBase().PlayTime(dp.TimestampUs)
	report := c.RcvBuf().Insert(dp.Seq, dp.MsgNo, dp.PB, dp.InOrder, dp.Payload, playUs)
	if report.Outcome == rcvbuf.Inserted {
		c.Counters().AddPktRecv(1)
		c.Counters().AddBytesRecv(uint64(len(dp.Payload)))
		c.Arrival().OnPacketArrival(time.Now().UnixMicro())
		if report.HasGap {
			lo := c.RcvBuf().AckPoint()
			hi := seq.Dec(dp.Seq)
			if seq.Cmp(lo, hi) <= 0 {
				c.LossList().Insert(lo, hi)
			}
		}
	}
	m.epoll.SetReady(key.socketID, EventReadable)
}

func (m *Mux) dispatchControlToConn(c *conn.Conn, ctrl wire.ControlPacket) {
	switch ctrl.Type {
	case wire.CtrlACK:
		peer := c.Peer()
		if peer == nil {
			return
		}
		reply := c.HandleACK(ctrl)
		_ = m.send(reply, peer)
		m.epoll.SetReady(c.SocketID(), EventWritable)
	case wire.CtrlACKACK:
		rtt := int64(uint32(time.Now().UnixMicro()) - ctrl.TimestampUs)
		c.OnAckAck(rtt)
	case wire.CtrlLossReport:
		entries, err := wire.DecodeLossReport(ctrl.Body)
		if err != nil {
			return
		}
		nowUs := time.Now().UnixMicro()
		for _, e := range entries {
			c.SndBuf().InsertLoss(e.Lo, e.Hi, nowUs)
		}
		c.Counters().AddPktRecvNAK(1)
	case wire.CtrlShutdown:
		c.MarkBroken(errors.New("mux: peer sent shutdown"))
		m.sched.WithdrawConn(c.SocketID())
		m.epoll.SetReady(c.SocketID(), EventError)
	}
}

// handleListenerHandshake drives a listening Mux's half of the
// induction/conclusion exchange for a peer it has not seen before, or
// re-replies idempotently to a retransmitted induction.
func (m *Mux) handleListenerHandshake(peer net.Addr, ctrl wire.ControlPacket) {
	m.mu.RLock()
	listening := m.listening
	cfg := m.listenCfg
	passphrase := m.passphrase
	m.mu.RUnlock()
	if !listening {
		return
	}

	in, err := wire.DecodeHandshake(ctrl.Body[:handshakeFixedLen(ctrl.Body)])
	if err != nil {
		return
	}

	if in.HandshakeType != conn.HSTypeConclusion {
		m.replyInduction(peer, cfg, ctrl)
		return
	}

	cfg.SocketID = m.newSocketID()
	c := conn.New(cfg, 0)
	if passphrase != "" {
		c.SetPassphrase(passphrase)
	}
	c.Open()

	key := connKey{peer: peer.String(), socketID: cfg.SocketID}
	m.registerConn(key, c)

	reply, err := c.HandleConclusion(peer, ctrl, 0)
	if err != nil {
		m.mu.Lock()
		delete(m.conns, key)
		delete(m.connsByID, c.SocketID())
		m.mu.Unlock()
		return
	}

	if err := m.send(reply, peer); err != nil {
		return
	}

	m.epoll.Add(cfg.SocketID, EventReadable|EventWritable|EventError|EventUpdate)
	m.sched.Put(cfg.SocketID, 0, scheduler.Control, time.Now().Add(conn.AckIntervalUs*time.Microsecond))
	select {
	case m.chAccept <- c:
	default:
	}
}

// replyInduction answers a caller's first induction packet with a freshly
// minted cookie; it uses a throwaway Conn purely to reach
// HandleInduction's cookie-minting logic, since no per-peer state exists
// yet at this stage of the handshake.
func (m *Mux) replyInduction(peer net.Addr, cfg conn.Config, ctrl wire.ControlPacket) {
	cfg.SocketID = listenerSocketID
	tmp := conn.New(cfg, 0)
	reply, err := tmp.HandleInduction(peer, ctrl, 0)
	if err != nil {
		return
	}
	_ = m.send(reply, peer)
}

const handshakeFixedBodyLen = 4*8 + 16

func handshakeFixedLen(body []byte) int {
	if len(body) < handshakeFixedBodyLen {
		return len(body)
	}
	return handshakeFixedBodyLen
}
