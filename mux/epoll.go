package mux

import (
	"sync"
	"time"
)

// Event is one of the readiness bits spec §4.J defines for an epoll
// registration.
type Event uint8

const (
	EventReadable Event = 1 << iota
	EventWritable
	EventError
	EventUpdate
)

// Ready is one (socket-id, fired-events) pair returned by Wait.
type Ready struct {
	SocketID uint32
	Events   Event
}

// member is one socket's epoll registration: the event mask it watches
// and the subset currently asserted.
type member struct {
	watch   Event
	pending Event
}

// Epoll implements the registration set of spec §4.J: sockets register
// an event mask, something external calls SetReady as a socket's state
// changes, and Wait blocks until at least one registered socket has a
// pending event in its watched mask, the timeout elapses, or Interrupt
// is called. The cond-var-plus-generation-counter shape mirrors
// scheduler.Scheduler's Wait/Interrupt pair, generalized from "one timer
// heap" to "a set of independently-updated sockets."
type Epoll struct {
	mu   sync.Mutex
	cond *sync.Cond

	members map[uint32]*member

	generation  uint64
	interrupted bool
	closed      bool
}

// NewEpoll constructs an empty registration set.
func NewEpoll() *Epoll {
	e := &Epoll{members: make(map[uint32]*member)}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Add registers socketID with the given watched event mask
// (epoll_add_usock).
func (e *Epoll) Add(socketID uint32, watch Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.members[socketID] = &member{watch: watch}
}

// Update changes socketID's watched event mask (epoll_update_usock).
func (e *Epoll) Update(socketID uint32, watch Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.members[socketID]; ok {
		m.watch = watch
	}
}

// Remove unregisters socketID (epoll_remove_usock).
func (e *Epoll) Remove(socketID uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.members, socketID)
}

// SetReady asserts events on socketID that intersect its watched mask
// and wakes any blocked Wait call. Bits outside the watched mask are
// recorded too so a later Update can observe them, matching a socket
// that becomes readable before anyone asks to watch for it.
func (e *Epoll) SetReady(socketID uint32, events Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.members[socketID]
	if !ok {
		return
	}
	m.pending |= events
	if m.pending&m.watch != 0 {
		e.generation++
		e.cond.Broadcast()
	}
}

// ClearReady drops events from socketID's pending set once the
// application has consumed them (e.g. after a recv_message drains the
// last readable packet).
func (e *Epoll) ClearReady(socketID uint32, events Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.members[socketID]; ok {
		m.pending &^= events
	}
}

// Interrupt wakes any blocked Wait call immediately, per epoll_interrupt.
func (e *Epoll) Interrupt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interrupted = true
	e.generation++
	e.cond.Broadcast()
}

// Close unblocks all waiters permanently.
func (e *Epoll) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.cond.Broadcast()
}

// Wait blocks until at least one registered socket has a pending event
// within its watched mask, the timeout elapses, or Interrupt is called,
// then returns the ready set (epoll_wait). timeout <= 0 waits with no
// deadline, matching scenario 6's epoll_wait(inf).
func (e *Epoll) Wait(timeout time.Duration) []Ready {
	var timedOut bool
	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() {
			e.mu.Lock()
			timedOut = true
			e.cond.Broadcast()
			e.mu.Unlock()
		})
		defer timer.Stop()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		if e.closed {
			return nil
		}
		if e.interrupted {
			e.interrupted = false
			return e.snapshotReadyLocked()
		}
		if ready := e.snapshotReadyLocked(); len(ready) > 0 {
			return ready
		}
		if timedOut {
			return nil
		}
		e.cond.Wait()
	}
}

// Peek returns the current ready set without blocking, for callers that
// poll several Epoll sets (e.g. one per bind-address) from one higher
// level wait loop instead of blocking on any single one.
func (e *Epoll) Peek() []Ready {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotReadyLocked()
}

func (e *Epoll) snapshotReadyLocked() []Ready {
	var out []Ready
	for id, m := range e.members {
		if fired := m.pending & m.watch; fired != 0 {
			out = append(out, Ready{SocketID: id, Events: fired})
		}
	}
	return out
}
