// Package scheduler implements the send scheduler of spec §4.H: a
// min-heap of tasks ordered by send time, each naming the connection,
// sequence number, and kind of packet due, plus a secondary
// per-connection task list that lets Close withdraw every pending task
// for one connection without scanning the whole heap. The heap itself and
// its wake/sleep loop are grounded in kcp-go's timedsched.go TimedSched,
// generalized from "opaque callback, no withdrawal" to the
// kind-tagged, per-connection-revocable tasks this transport needs.
package scheduler

import (
	"container/heap"
	"container/list"
	"sync"
	"time"
)

// Kind distinguishes why a task is scheduled.
type Kind int

const (
	Regular Kind = iota
	Retransmit
	Control
)

// Action is what the connection tells the scheduler to do with a popped
// task.
type Action int

const (
	ActionSend Action = iota
	ActionSkip           // packet no longer needed, drop silently
	ActionDrop           // emit a Drop Request before moving on
)

type task struct {
	connID uint32
	seq    uint32
	kind   Kind
	sendAt time.Time

	heapIndex int
	elem      *list.Element // node in the owning connection's task list
}

type taskHeap []*task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].sendAt.Before(h[j].sendAt) }
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *taskHeap) Push(x interface{}) {
	t := x.(*task)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Scheduler owns the task heap and the per-connection revocation lists.
type Scheduler struct {
	mu    sync.Mutex
	cond  *sync.Cond
	heap  taskHeap
	conns map[uint32]*list.List

	interrupted bool
	closed      bool
}

// New returns an empty scheduler.
func New() *Scheduler {
	s := &Scheduler{conns: make(map[uint32]*list.List)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Put schedules a task for connID at sendAt.
func (s *Scheduler) Put(connID uint32, seq uint32, kind Kind, sendAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	t := &task{connID: connID, seq: seq, kind: kind, sendAt: sendAt}
	heap.Push(&s.heap, t)

	l, ok := s.conns[connID]
	if !ok {
		l = list.New()
		s.conns[connID] = l
	}
	t.elem = l.PushBack(t)

	s.cond.Signal()
}

// WithdrawConn removes every pending task for connID, each in O(1) via
// the connection's own task list; the heap entries are left in place and
// skipped lazily when popped (cheaper than a heap-wide scan or removal).
func (s *Scheduler) WithdrawConn(connID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.conns[connID]
	if !ok {
		return
	}
	for e := l.Front(); e != nil; e = e.Next() {
		e.Value.(*task).connID = 0 // 0 is never a live connection id; marks it dead
	}
	delete(s.conns, connID)
}

// popDue returns the earliest task if it is due, nil otherwise. The
// caller must hold s.mu.
func (s *Scheduler) popDue(now time.Time) *task {
	for s.heap.Len() > 0 {
		top := s.heap[0]
		if top.connID == 0 { // withdrawn
			heap.Pop(&s.heap)
			continue
		}
		if top.sendAt.After(now) {
			return nil
		}
		heap.Pop(&s.heap)
		l := s.conns[top.connID]
		if l != nil {
			l.Remove(top.elem)
		}
		return top
	}
	return nil
}

// Wait blocks until a task is due, then pops and returns it, or until the
// scheduler is closed, when it returns ok=false. An Interrupt makes a
// blocked Wait re-check the heap; it does not make Wait return, and Wait
// goes back to waiting if no task is due.
func (s *Scheduler) Wait() (connID uint32, seq uint32, kind Kind, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.closed {
			return 0, 0, 0, false
		}
		now := time.Now()
		if t := s.popDue(now); t != nil {
			return t.connID, t.seq, t.kind, true
		}

		if s.heap.Len() == 0 {
			s.cond.Wait()
			continue
		}

		wait := s.heap[0].sendAt.Sub(now)
		if wait <= 0 {
			continue
		}
		timer := time.AfterFunc(wait, func() {
			s.mu.Lock()
			s.cond.Signal()
			s.mu.Unlock()
		})
		s.cond.Wait()
		timer.Stop()
	}
}

// Interrupt wakes a blocked Wait call to re-check the heap, without
// scheduling any new task; Wait returns only once a task is due or the
// scheduler is closed.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cond.Broadcast()
}

// Close stops the scheduler; any blocked or future Wait call returns
// ok=false.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

// Len reports the number of tasks currently pending, including any
// lazily-withdrawn entries not yet skipped past.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}
