package srt

import (
	"time"

	"github.com/xtaci/srt-go/config"
	"github.com/xtaci/srt-go/conn"
	"github.com/xtaci/srt-go/errs"
	"github.com/xtaci/srt-go/mux"
)

// Send is send() with the in-order flag set and no explicit TTL; it is
// SendMessage's common case.
func (s *Socket) Send(buf []byte) (int, error) {
	return s.SendMessage(buf, true, -1)
}

// SendMessage is send_message(): it hands buf to the connection's send
// buffer, retrying under the socket's SNDSYN/SNDTIMEO policy when the
// buffer is momentarily full rather than surfacing "again" to a blocking
// caller immediately (spec §5's "send_message may suspend when send
// buffer is full (blocking mode) or return again").
func (s *Socket) SendMessage(buf []byte, inOrder bool, ttlMs int64) (int, error) {
	s.mu.Lock()
	c, ch, opts := s.c, s.ch, s.opts
	s.mu.Unlock()
	if c == nil {
		return 0, s.setLastError(errs.New(errs.Connection, errs.MinorBroken, "send on an unconnected socket"))
	}

	blocking := opts.GetBool(config.SndSyn)
	deadline := deadlineFrom(opts.GetInt64(config.SndTimeo))

	for {
		n, err := c.Send(buf, inOrder, ttlMs, time.Now().UnixMicro())
		if err == nil {
			return n, nil
		}
		if !errs.IsAgain(err) {
			return 0, s.setLastError(err)
		}
		if !blocking {
			return 0, s.setLastError(err)
		}
		if waited := waitEvent(ch, c.SocketID(), mux.EventWritable, deadline); !waited {
			return 0, s.setLastError(errs.New(errs.Again, errs.MinorWriteWouldBlock, "send timed out"))
		}
	}
}

// Recv is recv_message() into a fresh, single-message read; most callers
// use it rather than reassembling a stream themselves.
func (s *Socket) Recv(buf []byte) (int, error) {
	return s.RecvMessage(buf)
}

// RecvMessage is recv_message(): it blocks (subject to RCVSYN/RCVTIMEO)
// until a full message is ready, then copies it out.
func (s *Socket) RecvMessage(buf []byte) (int, error) {
	s.mu.Lock()
	c, ch, opts := s.c, s.ch, s.opts
	s.mu.Unlock()
	if c == nil {
		return 0, s.setLastError(errs.New(errs.Connection, errs.MinorBroken, "recv on an unconnected socket"))
	}

	blocking := opts.GetBool(config.RcvSyn)
	deadline := deadlineFrom(opts.GetInt64(config.RcvTimeo))

	for {
		n, _, _, ok := c.RcvBuf().ReadMessage(buf)
		if ok {
			if ch != nil && !c.RcvBuf().IsReadableMessage() {
				ch.Epoll().ClearReady(c.SocketID(), mux.EventReadable)
			}
			return n, nil
		}
		if c.State() != conn.Connected {
			return 0, s.setLastError(errs.New(errs.Connection, errs.MinorBroken, "recv on a closed connection"))
		}
		if !blocking {
			return 0, s.setLastError(errs.New(errs.Again, errs.MinorReadWouldBlock, "no message ready"))
		}
		if waited := waitEvent(ch, c.SocketID(), mux.EventReadable, deadline); !waited {
			return 0, s.setLastError(errs.New(errs.Again, errs.MinorReadWouldBlock, "recv timed out"))
		}
	}
}

// deadlineFrom turns a SNDTIMEO/RCVTIMEO microsecond option value into an
// absolute deadline; a non-positive value (including the unset default)
// means block with no deadline.
func deadlineFrom(timeoUs int64) time.Time {
	if timeoUs <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(timeoUs) * time.Microsecond)
}

// waitEvent blocks on ch's epoll set for ev on socketID, honoring an
// optional absolute deadline; it returns false on timeout or a closed
// multiplexer.
func waitEvent(ch *mux.Mux, socketID uint32, ev mux.Event, deadline time.Time) bool {
	if ch == nil {
		return false
	}
	for {
		var timeout time.Duration
		if !deadline.IsZero() {
			timeout = time.Until(deadline)
			if timeout <= 0 {
				return false
			}
		} else {
			timeout = 50 * time.Millisecond
		}
		ready := ch.Epoll().Wait(timeout)
		for _, r := range ready {
			if r.SocketID == socketID && r.Events&ev != 0 {
				return true
			}
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return false
		}
	}
}
