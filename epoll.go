package srt

import (
	"sync"
	"time"

	"github.com/xtaci/srt-go/errs"
	"github.com/xtaci/srt-go/mux"
)

// Event mirrors mux.Event at the public API boundary: R/W/E/U readiness
// bits a socket can be watched for, per spec §4.J/§6's epoll_* family.
type Event = mux.Event

const (
	EventIn    Event = mux.EventReadable
	EventOut   Event = mux.EventWritable
	EventErr   Event = mux.EventError
	EventUpdate Event = mux.EventUpdate
)

// EpollReady is one (socket, fired-events) pair from EpollWait.
type EpollReady struct {
	Socket *Socket
	Events Event
}

// Epoll is the public epoll_create handle of spec §4.L: a set of socket
// registrations spanning possibly many multiplexers (one per bind
// address). Each member's actual readiness lives in its own Mux's
// mux.Epoll; this type fans those out into one wait call by polling
// every distinct underlying set, grounded directly on mux.Epoll's own
// cond-var design but generalized from "one set" to "a set of sets"
// since an application may epoll sockets bound to different addresses
// together.
type Epoll struct {
	mu      sync.Mutex
	members map[SocketID]Event

	interrupt chan struct{}
	closed    bool
}

// EpollCreate returns a fresh, empty epoll set.
func EpollCreate() *Epoll {
	return &Epoll{
		members:   make(map[SocketID]Event),
		interrupt: make(chan struct{}, 1),
	}
}

// EpollAddUsock registers s to be watched for the given events.
func (e *Epoll) EpollAddUsock(s *Socket, events Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errs.New(errs.Connection, errs.MinorBroken, "epoll: add on a released set")
	}
	e.members[s.id] = events
	return nil
}

// EpollUpdateUsock changes the watched mask for an already-registered
// socket.
func (e *Epoll) EpollUpdateUsock(s *Socket, events Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.members[s.id]; !ok {
		return errs.New(errs.Setup, errs.MinorInvalidParam, "epoll: socket not registered")
	}
	e.members[s.id] = events
	return nil
}

// EpollRemoveUsock unregisters s.
func (e *Epoll) EpollRemoveUsock(s *Socket) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.members, s.id)
}

// EpollRelease discards the set; any in-flight EpollWait returns
// immediately with nothing ready.
func (e *Epoll) EpollRelease() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// EpollInterrupt wakes a blocked EpollWait call immediately, per
// epoll_interrupt.
func (e *Epoll) EpollInterrupt() {
	select {
	case e.interrupt <- struct{}{}:
	default:
	}
}

// pollInterval is how often EpollWait re-checks every member mux's
// readiness set; it is a polling fallback rather than a single blocking
// call because members can span more than one underlying mux.Epoll, and
// mux.Epoll offers no cross-set wake primitive.
const pollInterval = 2 * time.Millisecond

// EpollWait blocks until at least one registered socket has a fired
// event within its watched mask, timeout elapses, or EpollInterrupt is
// called; timeout <= 0 waits with no deadline.
func (e *Epoll) EpollWait(timeout time.Duration) []EpollReady {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if ready := e.snapshot(); len(ready) > 0 {
			return ready
		}

		e.mu.Lock()
		closed := e.closed
		e.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-e.interrupt:
			return e.snapshot()
		case <-time.After(pollInterval):
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil
		}
	}
}

// snapshot peeks every registered socket's underlying mux readiness and
// returns the subset whose fired events intersect the watched mask.
func (e *Epoll) snapshot() []EpollReady {
	e.mu.Lock()
	watch := make(map[SocketID]Event, len(e.members))
	for id, w := range e.members {
		watch[id] = w
	}
	e.mu.Unlock()

	var out []EpollReady
	for id, w := range watch {
		s, ok := Lookup(id)
		if !ok {
			continue
		}
		s.mu.Lock()
		ch, c := s.ch, s.c
		s.mu.Unlock()
		if ch == nil || c == nil {
			continue
		}
		fired := ch.Epoll().Peek()
		for _, r := range fired {
			if r.SocketID != c.SocketID() {
				continue
			}
			if hit := r.Events & w; hit != 0 {
				out = append(out, EpollReady{Socket: s, Events: hit})
			}
		}
	}
	return out
}
