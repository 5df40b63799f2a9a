// Package srt is the public API surface of spec §4.L/§6: opaque socket
// identifiers over a global, refcounted socket table (spec §5's "global
// socket table uses a single coarse mutex; socket lookup returns a
// refcounted handle so callers can drop the table lock before using the
// socket"), layered on top of conn.Conn/mux.Mux. The registry shape is
// grounded in kcp-go's package-level Listen/Dial constructors
// (sess.go's ListenWithOptions/DialWithOptions), generalized from "one
// net.Conn-shaped value per session" to SRT's named socket-id calls.
package srt

import (
	"log"
	"net"
	"os"
	"sync"

	"github.com/xtaci/srt-go/conn"
	"github.com/xtaci/srt-go/config"
	"github.com/xtaci/srt-go/errs"
	"github.com/xtaci/srt-go/mux"
)

// Logger is the package-level diagnostic logger, matching the teacher's
// plain log.Println/log.SetFlags style (client/main.go) rather than a
// structured-logging dependency — nothing in the pack pulls one in for
// this kind of terse operational logging. No code in this module writes
// to it.
var Logger = log.New(os.Stderr, "srt: ", log.LstdFlags)

// SocketID is the opaque handle spec §6's create_socket returns.
type SocketID int32

// role distinguishes what a socket is for, since a single *Socket may be
// a bare just-created handle, a listener, or a connected data socket.
type role int

const (
	roleFresh role = iota
	roleListener
	roleConnected
)

// Socket is one entry in the global socket table: spec §7's "each thread
// stores its own last error" is simplified (as conn's own doc comment
// notes) to one slot per socket, since API calls are serialized per
// handle by the caller.
type Socket struct {
	id SocketID

	mu   sync.Mutex
	role role

	opts *config.Options

	ch      *mux.Mux // the multiplexer this socket's traffic flows through, nil until Bind
	ownsMux bool     // true for a listener or a lone caller socket; false for one of a listener's accepted sockets, which share its mux
	c       *conn.Conn
	laddr   net.Addr

	lastErr error
}

// ID returns the socket's opaque identifier.
func (s *Socket) ID() SocketID { return s.id }

var (
	registryMu sync.RWMutex
	registry   = make(map[SocketID]*Socket)
	nextID     SocketID = 1
)

// CreateSocket allocates a fresh socket in the Init-equivalent state: no
// bind, no connection, a default option table.
func CreateSocket() *Socket {
	registryMu.Lock()
	id := nextID
	nextID++
	s := &Socket{id: id, role: roleFresh, opts: config.New()}
	registry[id] = s
	registryMu.Unlock()
	return s
}

// Lookup resolves a SocketID back to its handle, matching spec §5's
// refcounted-handle-under-a-coarse-lock lookup pattern (the returned
// *Socket can be used after the registry lock is released).
func Lookup(id SocketID) (*Socket, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[id]
	return s, ok
}

func (s *Socket) setLastError(err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// GetLastError returns the most recent error recorded against this
// socket (spec §7).
func (s *Socket) GetLastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// GetSockState reports the socket's lifecycle state. A socket with no
// underlying conn.Conn yet (freshly created, or a listener, which has no
// per-peer state of its own) reports conn.Opened once bound and
// conn.Init before that.
func (s *Socket) GetSockState() conn.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return s.c.State()
	}
	if s.ch != nil {
		return conn.Opened
	}
	return conn.Init
}

// GetRejectReason surfaces a caller or listener side connection's
// rejection reason (spec §7); it is RejUnknown for a socket that was
// never rejected.
func (s *Socket) GetRejectReason() errs.RejectReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return errs.RejUnknown
	}
	return s.c.RejectReason()
}

// GetPeerName returns the remote address of a connected socket.
func (s *Socket) GetPeerName() (net.Addr, error) {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()
	if c == nil {
		return nil, s.setLastError(errs.New(errs.Connection, errs.MinorNotBound, "socket has no peer"))
	}
	peer := c.Peer()
	if peer == nil {
		return nil, s.setLastError(errs.New(errs.Connection, errs.MinorBroken, "handshake not complete"))
	}
	return peer, nil
}

// GetSockName returns the local bound address.
func (s *Socket) GetSockName() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.laddr == nil {
		return nil, errs.New(errs.Connection, errs.MinorNotBound, "socket is not bound")
	}
	return s.laddr, nil
}

// SetOption sets a PRE or POST option; PRE options are rejected once the
// socket's option table has been locked (Connect/Listen does this).
func (s *Socket) SetOption(opt config.Option, value interface{}) error {
	if err := s.opts.Set(opt, value); err != nil {
		return s.setLastError(err)
	}
	return nil
}

// GetOption returns a previously set (or default) option value.
func (s *Socket) GetOption(opt config.Option) (interface{}, bool) {
	return s.opts.Get(opt)
}

// Close marks the socket broken, withdraws its scheduler tasks, and
// unblocks anything waiting on it (spec §5's cancellation contract).
// After Close returns, no further packet or callback is emitted for it.
func (s *Socket) Close() error {
	s.mu.Lock()
	c := s.c
	ownsMux := s.ownsMux
	ch := s.ch
	s.mu.Unlock()

	if c != nil {
		c.BeginClose()
		c.FinishClose()
		c.Release()
		if ch != nil && !ownsMux {
			ch.CloseConn(c)
		}
	}
	if ownsMux && ch != nil {
		return ch.Close()
	}
	return nil
}
