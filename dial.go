package srt

import (
	"net"

	"github.com/xtaci/srt-go/channel"
	"github.com/xtaci/srt-go/config"
	"github.com/xtaci/srt-go/conn"
	"github.com/xtaci/srt-go/errs"
	"github.com/xtaci/srt-go/mux"
)

// buildConnConfig translates a socket's option table into the subset
// conn.New needs directly; FC (flight window) sizes both the send and
// receive ring buffers, matching original_source/srtcore's single flow
// control window bounding both directions.
func buildConnConfig(opts *config.Options, socketID uint32) conn.Config {
	return conn.Config{
		SocketID:     socketID,
		ChunkSize:    opts.GetInt(config.PayloadSize),
		SndBufCap:    opts.GetInt(config.FC),
		RcvBufCap:    opts.GetInt(config.FC),
		TSBPDEnabled: opts.GetBool(config.TSBPDMode),
		LatencyUs:    opts.GetInt64(config.Latency),
		OutOfOrder:   opts.GetBool(config.MessageAPI),
		NAKMinUs:     20_000,
		PBKeyLenByte: opts.GetInt(config.PBKeyLen),
		Enforced:     opts.GetBool(config.EnforcedEncryption),
	}
}

// Bind reserves a local UDP address for the socket and starts its
// multiplexer (reader and sender threads); it must precede Listen,
// Connect, or ConnectBind.
func (s *Socket) Bind(laddr string) error {
	addr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return s.setLastError(errs.New(errs.Setup, errs.MinorInvalidParam, "invalid bind address"))
	}
	pc, err := net.ListenUDP("udp", addr)
	if err != nil {
		return s.setLastError(errs.New(errs.SystemResource, errs.MinorMemory, err.Error()))
	}

	ch := channel.New(pc)
	s.mu.Lock()
	s.ch = mux.New(ch)
	s.ownsMux = true
	s.laddr = pc.LocalAddr()
	s.mu.Unlock()
	return nil
}

// Listen arms a bound socket to accept inbound connections.
func (s *Socket) Listen(backlog int) error {
	s.mu.Lock()
	ch := s.ch
	opts := s.opts
	s.role = roleListener
	s.mu.Unlock()
	if ch == nil {
		return s.setLastError(errs.New(errs.Connection, errs.MinorNotBound, "listen on an unbound socket"))
	}
	opts.Lock()
	ch.Listen(buildConnConfig(opts, 0), opts.GetString(config.Passphrase))
	return nil
}

// Accept blocks until a new inbound connection completes its handshake
// and returns a freshly registered socket for it.
func (s *Socket) Accept() (*Socket, net.Addr, error) {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	if ch == nil {
		return nil, nil, s.setLastError(errs.New(errs.Connection, errs.MinorNotListening, "accept on an unbound socket"))
	}

	c, err := ch.Accept()
	if err != nil {
		return nil, nil, s.setLastError(err)
	}

	registryMu.Lock()
	id := nextID
	nextID++
	accepted := &Socket{id: id, role: roleConnected, opts: config.New(), ch: ch, c: c, laddr: s.laddr}
	registry[id] = accepted
	registryMu.Unlock()

	return accepted, c.Peer(), nil
}

// Connect runs the caller side of the handshake against raddr,
// auto-binding an ephemeral local address first if the socket has not
// already been bound.
func (s *Socket) Connect(raddr string) error {
	return s.connect("", raddr)
}

// ConnectBind is Connect with an explicit local address instead of an
// ephemeral one.
func (s *Socket) ConnectBind(laddr, raddr string) error {
	return s.connect(laddr, raddr)
}

func (s *Socket) connect(laddr, raddr string) error {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()

	if ch == nil {
		bindAddr := laddr
		if bindAddr == "" {
			bindAddr = "0.0.0.0:0"
		}
		if err := s.Bind(bindAddr); err != nil {
			return err
		}
		s.mu.Lock()
		ch = s.ch
		s.mu.Unlock()
	}

	peer, err := net.ResolveUDPAddr("udp", raddr)
	if err != nil {
		return s.setLastError(errs.New(errs.Setup, errs.MinorInvalidParam, "invalid peer address"))
	}

	s.mu.Lock()
	opts := s.opts
	s.role = roleConnected
	s.mu.Unlock()
	opts.Lock()

	c, err := ch.Dial(peer, buildConnConfig(opts, 0), opts.GetString(config.Passphrase))
	if err != nil {
		return s.setLastError(err)
	}

	s.mu.Lock()
	s.c = c
	s.mu.Unlock()
	return nil
}
