// Package sndbuf implements the sender's packet buffer (spec §4.D): a
// capacity-bounded ring of cells holding unacknowledged packets, an
// inline per-cell loss schedule used for retransmission instead of an
// auxiliary container, and TTL-based message dropping. The ring and
// first-unack/unique-send cursor arithmetic follows kcp-go's snd_buf /
// snd_nxt bookkeeping in kcp.go, generalized from KCP's 32-bit
// little-endian sequence space to the transport's 31-bit wrap-around one.
package sndbuf

import (
	"sync"

	"github.com/xtaci/srt-go/seq"
)

// Cell holds one outstanding packet plus its retransmit schedule: a
// nonzero NextRexmitUs marks it lost and due for resend at that time.
type Cell struct {
	valid bool

	Seq      uint32
	MsgNo    uint32
	PB       uint8
	InOrder  bool
	Payload  []byte
	OriginUs int64
	TTLMs    int64 // negative means infinite

	NextRexmitUs int64 // 0 means not scheduled
}

// Buffer is the sender's send/retransmit packet store.
type Buffer struct {
	mu sync.Mutex

	cells []Cell
	cap   int

	startPos int    // index of the cell that holds startSeq
	startSeq uint32 // sequence number held by cells[startPos], i.e. first-unacked
	nextSeq  uint32 // next sequence to be assigned by Add

	uniquePos int // ring index of the next never-yet-sent cell, relative to startSeq

	firstRexmit int // ring index cursor for pop_lost_seq scanning
}

// New returns an empty buffer with room for capacity packets and an
// initial sequence number (typically a handshake-negotiated ISN).
func New(capacity int, initialSeq uint32) *Buffer {
	return &Buffer{
		cells:    make([]Cell, capacity),
		cap:      capacity,
		startSeq: initialSeq,
		nextSeq:  initialSeq,
	}
}

func (b *Buffer) ringIndex(s uint32) int {
	off := seq.Off(b.startSeq, s)
	return (b.startPos + int(off)) % b.cap
}

func (b *Buffer) size() int {
	return int(seq.Len(b.startSeq, b.nextSeq)) - 1
}

// Full reports whether the buffer has no room for another packet.
func (b *Buffer) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size() >= b.cap
}

// Add splits data into chunks of at most chunkSize bytes, assigns each a
// sequence number and a message number, stamps packet-boundary flags, and
// stores them. It returns the sequence number and message number assigned
// to the first chunk, or ok=false if the buffer lacks room for all of
// them.
func (b *Buffer) Add(data []byte, chunkSize int, msgNo uint32, inOrder bool, ttlMs int64, nowUs int64) (firstSeq, firstMsgNo uint32, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := (len(data) + chunkSize - 1) / chunkSize
	if n == 0 {
		n = 1
	}
	if b.size()+n > b.cap {
		return 0, 0, false
	}

	firstSeq = b.nextSeq
	firstMsgNo = msgNo

	for i := 0; i < n; i++ {
		lo := i * chunkSize
		hi := lo + chunkSize
		if hi > len(data) {
			hi = len(data)
		}

		var pb uint8
		switch {
		case n == 1:
			pb = pbSolo
		case i == 0:
			pb = pbFirst
		case i == n-1:
			pb = pbLast
		default:
			pb = pbMiddle
		}

		idx := b.ringIndex(b.nextSeq)
		b.cells[idx] = Cell{
			valid:    true,
			Seq:      b.nextSeq,
			MsgNo:    msgNo,
			PB:       pb,
			InOrder:  inOrder,
			Payload:  append([]byte(nil), data[lo:hi]...),
			OriginUs: nowUs,
			TTLMs:    ttlMs,
		}
		b.nextSeq = seq.Inc(b.nextSeq)
	}
	return firstSeq, firstMsgNo, true
}

// Packet boundary flag values, mirrored from the wire package to avoid an
// import cycle (wire has no reason to depend on sndbuf).
const (
	pbMiddle = 0
	pbLast   = 1
	pbFirst  = 2
	pbSolo   = 3
)

// ExtractUnique returns the next never-yet-sent packet and advances the
// unique-send pointer, or ok=false if everything has already been sent at
// least once.
func (b *Buffer) ExtractUnique() (cell Cell, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	uniqueSeq := seq.Inc(b.startSeq, uint32(b.uniquePos))
	if seq.Cmp(uniqueSeq, b.nextSeq) >= 0 {
		return Cell{}, false
	}
	idx := b.ringIndex(uniqueSeq)
	c := b.cells[idx]
	if !c.valid {
		return Cell{}, false
	}
	b.uniquePos++
	return c, true
}

// ReadOld returns the packet at seq for retransmission, or drop=true if
// its TTL has expired (the caller must then emit a Drop Request for the
// whole message this packet belongs to).
func (b *Buffer) ReadOld(s uint32, nowUs int64) (cell Cell, drop bool, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if seq.Cmp(s, b.startSeq) < 0 || seq.Cmp(s, b.nextSeq) >= 0 {
		return Cell{}, false, false
	}
	idx := b.ringIndex(s)
	c := b.cells[idx]
	if !c.valid {
		return Cell{}, false, false
	}
	if c.TTLMs >= 0 {
		ageMs := (nowUs - c.OriginUs) / 1000
		if ageMs > c.TTLMs {
			return c, true, true
		}
	}
	return c, false, true
}

// Revoke advances first-unack to uptoSeq (exclusive), freeing every cell
// behind it.
func (b *Buffer) Revoke(uptoSeq uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if seq.Cmp(uptoSeq, b.startSeq) <= 0 {
		return
	}
	n := int(seq.Off(b.startSeq, uptoSeq))
	if n > b.cap {
		n = b.cap
	}
	for s := b.startSeq; seq.Cmp(s, uptoSeq) < 0; s = seq.Inc(s) {
		b.cells[b.ringIndex(s)] = Cell{}
	}
	b.startPos = (b.startPos + n) % b.cap
	b.startSeq = uptoSeq
	b.uniquePos -= n
	if b.uniquePos < 0 {
		b.uniquePos = 0
	}
}

// DropLate drops every packet whose origin time implies its earliest
// possible play time is already older than tooLateUs, returning the
// count of packets dropped and the message number of the first one.
func (b *Buffer) DropLate(tooLateUs int64, latencyUs int64) (count int, firstMsgNo uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	first := true
	for s := b.startSeq; seq.Cmp(s, b.nextSeq) < 0; s = seq.Inc(s) {
		idx := b.ringIndex(s)
		c := &b.cells[idx]
		if !c.valid {
			continue
		}
		playUs := c.OriginUs + latencyUs
		if playUs >= tooLateUs {
			break
		}
		if first {
			firstMsgNo = c.MsgNo
			first = false
		}
		count++
	}
	if count > 0 {
		b.startPos = (b.startPos + count) % b.cap
		b.startSeq = seq.Inc(b.startSeq, uint32(count))
		b.uniquePos -= count
		if b.uniquePos < 0 {
			b.uniquePos = 0
		}
	}
	return count, firstMsgNo
}

// InsertLoss marks every cell in [lo, hi] as lost and due for
// retransmission at nextRexmitUs. The part of a range that lies behind
// first-unack is silently clipped off (spec §4.D).
func (b *Buffer) InsertLoss(lo, hi uint32, nextRexmitUs int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if seq.Cmp(lo, b.startSeq) < 0 {
		lo = b.startSeq
	}
	if seq.Cmp(lo, hi) > 0 {
		return
	}

	runLen := int(seq.Len(lo, hi))
	for i := 0; i < runLen; i++ {
		s := seq.Inc(lo, uint32(i))
		idx := b.ringIndex(s)
		if b.cells[idx].valid {
			b.cells[idx].NextRexmitUs = nextRexmitUs
		}
	}
}

// CancelLoss removes a single sequence number from the loss schedule.
func (b *Buffer) CancelLoss(s uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.ringIndex(s)
	if b.cells[idx].valid {
		b.cells[idx].NextRexmitUs = 0
	}
}

// PopLostSeq scans forward from the retransmit cursor for the next
// sequence number whose scheduled retransmit time has arrived, returning
// it and advancing the cursor. It returns ok=false if nothing is due yet.
func (b *Buffer) PopLostSeq(nowUs int64) (s uint32, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.size()
	for i := 0; i < n; i++ {
		pos := (b.firstRexmit + i) % b.cap
		c := &b.cells[pos]
		if c.valid && c.NextRexmitUs != 0 && c.NextRexmitUs <= nowUs {
			c.NextRexmitUs = 0
			b.firstRexmit = (pos + 1) % b.cap
			return c.Seq, true
		}
	}
	return 0, false
}

// WaitSend returns the number of packets currently outstanding
// (unacknowledged), mirroring kcp-go's WaitSnd.
func (b *Buffer) WaitSend() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size()
}
