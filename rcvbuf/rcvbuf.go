// Package rcvbuf implements the receiver's packet buffer (spec §4.E): a
// cylinder of N cells indexed modulo N by sequence number, classifying
// each insertion, tracking the contiguous-from-head run and any gap past
// it, and gating readiness either on in-order contiguity or, when TSBPD
// is enabled, on a per-packet play time. The ring/cursor arithmetic
// follows kcp-go's rcv_buf/rcv_queue sliding-window bookkeeping in
// kcp.go, generalized to the 31-bit sequence space and to message-level
// (not only stream-level) delivery.
package rcvbuf

import (
	"sync"

	"github.com/xtaci/srt-go/seq"
)

// Outcome classifies the result of Insert.
type Outcome int

const (
	Inserted Outcome = iota
	Redundant
	Belated
	Discrepancy
)

type cell struct {
	valid   bool
	seq     uint32
	msgNo   uint32
	pb      uint8
	inOrder bool
	payload []byte
	playUs  int64 // valid only when TSBPD is enabled
	notch   int   // bytes of this cell's payload already consumed in stream mode
}

// Buffer is the receiver's reassembly and reorder window.
type Buffer struct {
	mu sync.Mutex

	cells []cell
	cap   int

	startPos int    // index of the cell that holds startSeq
	startSeq uint32 // sequence number held by cells[startPos]
	maxOff   int    // past-the-end offset of the most recently written cell
	endOff   int    // past-the-end of the contiguous run from startSeq
	dropOff  int    // past a gap, first available packet after a drop; 0 if none

	firstNonReadOff int // below this offset everything has been read

	outOfOrderEnabled   bool
	firstNonOrderOff    int // shortcut offset of a complete out-of-order message, -1 if none
}

// New returns an empty buffer of the given cell capacity.
func New(capacity int, initialSeq uint32, outOfOrder bool) *Buffer {
	return &Buffer{
		cells:             make([]cell, capacity),
		cap:               capacity,
		startSeq:          initialSeq,
		outOfOrderEnabled: outOfOrder,
		firstNonOrderOff:  -1,
	}
}

func (b *Buffer) ringIndex(off int) int { return (b.startPos + off) % b.cap }

// InsertReport carries the first-available-sequence, gap, and earliest
// play time alongside the Insert classification, per spec §4.E.
type InsertReport struct {
	Outcome        Outcome
	FirstAvailSeq  uint32
	HasGap         bool
	EarliestPlayUs int64
}

// Insert places a data packet into the window. playUs is ignored when
// TSBPD is disabled; pass 0.
func (b *Buffer) Insert(packetSeq uint32, msgNo uint32, pb uint8, inOrder bool, payload []byte, playUs int64) InsertReport {
	b.mu.Lock()
	defer b.mu.Unlock()

	off := int(seq.Off(b.startSeq, packetSeq))
	if off < 0 {
		return InsertReport{Outcome: Belated, FirstAvailSeq: b.startSeq}
	}
	if off >= b.cap {
		return InsertReport{Outcome: Discrepancy, FirstAvailSeq: b.startSeq}
	}

	idx := b.ringIndex(off)
	if b.cells[idx].valid && b.cells[idx].seq == packetSeq {
		return InsertReport{Outcome: Redundant, FirstAvailSeq: b.startSeq}
	}

	b.cells[idx] = cell{
		valid:   true,
		seq:     packetSeq,
		msgNo:   msgNo,
		pb:      pb,
		inOrder: inOrder,
		payload: append([]byte(nil), payload...),
		playUs:  playUs,
	}

	if off+1 > b.maxOff {
		b.maxOff = off + 1
	}
	b.recomputeOffsets()

	if !inOrder && b.outOfOrderEnabled {
		b.scanOutOfOrder()
	}

	hasGap := b.endOff < b.maxOff
	return InsertReport{
		Outcome:        Inserted,
		FirstAvailSeq:  b.startSeq,
		HasGap:         hasGap,
		EarliestPlayUs: playUs,
	}
}

// recomputeOffsets extends endOff across any run of contiguous valid
// cells starting at the head, and recomputes dropOff as the first valid
// cell past the first gap.
func (b *Buffer) recomputeOffsets() {
	off := 0
	for off < b.maxOff && b.cells[b.ringIndex(off)].valid {
		off++
	}
	b.endOff = off

	if off >= b.maxOff {
		b.dropOff = 0
		return
	}
	scan := off
	for scan < b.maxOff && !b.cells[b.ringIndex(scan)].valid {
		scan++
	}
	if scan < b.maxOff {
		b.dropOff = scan
	} else {
		b.dropOff = 0
	}
}

// scanOutOfOrder looks for a complete out-of-order message anywhere in
// the populated window and records a shortcut to its start offset.
func (b *Buffer) scanOutOfOrder() {
	for off := b.endOff; off < b.maxOff; off++ {
		c := b.cells[b.ringIndex(off)]
		if !c.valid || c.inOrder {
			continue
		}
		if c.pb == pbSolo || c.pb == pbFirst {
			if b.messageCompleteAt(off, c.msgNo) {
				b.firstNonOrderOff = off
				return
			}
		}
	}
}

func (b *Buffer) messageCompleteAt(startOff int, msgNo uint32) bool {
	off := startOff
	for off < b.maxOff {
		c := b.cells[b.ringIndex(off)]
		if !c.valid || c.msgNo != msgNo {
			return false
		}
		if c.pb == pbSolo || c.pb == pbLast {
			return true
		}
		off++
	}
	return false
}

// Packet boundary flag values, mirrored from wire to avoid an import
// cycle.
const (
	pbMiddle = 0
	pbLast   = 1
	pbFirst  = 2
	pbSolo   = 3
)

// DropUpTo discards every cell before seq, reporting how many missing
// sequence numbers were skipped over (missingDropped) and how many valid
// packets were discarded (discarded) in the process.
func (b *Buffer) DropUpTo(target uint32) (missingDropped, discarded int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := int(seq.Off(b.startSeq, target))
	if n <= 0 {
		return 0, 0
	}
	if n > b.cap {
		n = b.cap
	}

	for off := 0; off < n; off++ {
		idx := b.ringIndex(off)
		if b.cells[idx].valid {
			discarded++
			b.cells[idx] = cell{}
		} else {
			missingDropped++
		}
	}
	b.shiftWindow(n)
	return missingDropped, discarded
}

// shiftWindow slides the ring origin forward by n cells and adjusts every
// tracked offset to match. The callers clear the cells that fall out of
// the window before calling it.
func (b *Buffer) shiftWindow(n int) {
	b.startPos = (b.startPos + n) % b.cap
	b.startSeq = seq.Inc(b.startSeq, uint32(n))
	b.maxOff -= n
	if b.maxOff < 0 {
		b.maxOff = 0
	}
	b.firstNonReadOff -= n
	if b.firstNonReadOff < 0 {
		b.firstNonReadOff = 0
	}
	if b.firstNonOrderOff >= 0 {
		b.firstNonOrderOff -= n
		if b.firstNonOrderOff < 0 {
			b.firstNonOrderOff = -1
		}
	}
	b.recomputeOffsets()
}

// DropMessage discards all packets of the message spanning [lo, hi] with
// message number msgNo. If keepExisting is true, cells that already hold
// a *different* message at those offsets (e.g. a SOLO packet delivered
// out of band) are left untouched; spec §9 resolves this in favor of
// keeping such cells rather than clobbering them.
func (b *Buffer) DropMessage(lo, hi uint32, msgNo uint32, keepExisting bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for s := lo; seq.Cmp(s, hi) <= 0; s = seq.Inc(s) {
		off := int(seq.Off(b.startSeq, s))
		if off < 0 || off >= b.cap {
			continue
		}
		idx := b.ringIndex(off)
		c := &b.cells[idx]
		if !c.valid {
			continue
		}
		if keepExisting && c.msgNo != msgNo {
			continue
		}
		*c = cell{}
		count++
	}
	b.recomputeOffsets()
	return count
}

// FirstValidPacketInfo reports the sequence number of the head cell, a
// flag for whether a gap follows it, and its play time.
func (b *Buffer) FirstValidPacketInfo() (headSeq uint32, hasGap bool, playUs int64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxOff == 0 || !b.cells[b.ringIndex(0)].valid {
		return 0, false, 0, false
	}
	c := b.cells[b.ringIndex(0)]
	return c.seq, b.endOff < b.maxOff, c.playUs, true
}

// FirstLossSeq returns the first missing sequence number at or after
// from, and ok=false if there is none within the populated window.
func (b *Buffer) FirstLossSeq(from uint32) (lossSeq uint32, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := int(seq.Off(b.startSeq, from))
	if start < 0 {
		start = 0
	}
	for off := start; off < b.maxOff; off++ {
		if !b.cells[b.ringIndex(off)].valid {
			return seq.Inc(b.startSeq, uint32(off)), true
		}
	}
	return 0, false
}

// IsReadableMessage reports whether a full message is ready for delivery
// under message-mode, non-TSBPD semantics: all its packets occupy
// consecutive cells from the head, or an out-of-order complete message
// exists anywhere in the window.
func (b *Buffer) IsReadableMessage() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	// the head run is contiguous; the head message is complete once a
	// LAST/SOLO cell appears inside it.
	for off := 0; off < b.endOff; off++ {
		c := b.cells[b.ringIndex(off)]
		if c.pb == pbLast || c.pb == pbSolo {
			return true
		}
	}
	return b.outOfOrderEnabled && b.firstNonOrderOff >= 0
}

// IsReadableStream reports whether TSBPD-off stream mode has at least one
// byte ready: any occupied head cell.
func (b *Buffer) IsReadableStream() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxOff > 0 && b.cells[b.ringIndex(0)].valid
}

// IsReadableTSBPD reports whether the head cell is occupied and its play
// time has arrived; a gap ahead of the head does not block readiness of
// the head packet itself, but the caller should have dropped up to it if
// the gap is permanent.
func (b *Buffer) IsReadableTSBPD(nowUs int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxOff == 0 {
		return false
	}
	c := b.cells[b.ringIndex(0)]
	return c.valid && nowUs >= c.playUs
}

// ReadMessage copies the ready message at the head into buf, returning
// the number of bytes written, or 0 if nothing is ready. It frees the
// consumed cells and advances the window.
func (b *Buffer) ReadMessage(buf []byte) (n int, seqLo, seqHi uint32, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	startOff := 0
	if b.outOfOrderEnabled && b.firstNonOrderOff >= 0 && (b.endOff == 0 || b.firstNonOrderOff < b.endOff) {
		startOff = b.firstNonOrderOff
	} else if b.endOff == 0 {
		return 0, 0, 0, false
	}

	c := b.cells[b.ringIndex(startOff)]
	if !c.valid {
		return 0, 0, 0, false
	}
	msgNo := c.msgNo
	seqLo = c.seq

	off := startOff
	for off < b.maxOff {
		cc := b.cells[b.ringIndex(off)]
		if !cc.valid || cc.msgNo != msgNo {
			return 0, 0, 0, false
		}
		if n+len(cc.payload) > len(buf) {
			return 0, 0, 0, false
		}
		copy(buf[n:], cc.payload)
		n += len(cc.payload)
		seqHi = cc.seq
		last := cc.pb == pbSolo || cc.pb == pbLast
		b.cells[b.ringIndex(off)] = cell{}
		off++
		if last {
			break
		}
	}

	if startOff == 0 {
		b.shiftWindow(off)
	} else {
		b.recomputeOffsets()
		if b.firstNonOrderOff == startOff {
			b.firstNonOrderOff = -1
		}
	}
	return n, seqLo, seqHi, true
}

// FirstNonReadSeq returns the sequence number below which every packet
// has already been delivered to the application.
func (b *Buffer) FirstNonReadSeq() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return seq.Inc(b.startSeq, uint32(b.firstNonReadOff))
}

// AckPoint returns the cumulative sequence number a periodic ACK reports
// to the sender: every packet below it has arrived contiguously from
// startSeq, regardless of whether the application has read it yet.
func (b *Buffer) AckPoint() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return seq.Inc(b.startSeq, uint32(b.endOff))
}

// AvailSize returns the number of cells this buffer can still accept
// past the highest sequence number written so far, for the receiver's
// flow-control report carried in a full ACK's body.
func (b *Buffer) AvailSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cap - b.maxOff
}

// ReadBuffer copies up to len(buf) bytes from the contiguous head run in
// stream mode, allowing partial consumption of a cell (tracked via
// notch) and advancing only past fully-consumed cells.
func (b *Buffer) ReadBuffer(buf []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	off := 0
	for off < b.endOff && n < len(buf) {
		idx := b.ringIndex(off)
		c := &b.cells[idx]
		remaining := c.payload[c.notch:]
		take := len(buf) - n
		if take > len(remaining) {
			take = len(remaining)
		}
		copy(buf[n:n+take], remaining[:take])
		n += take
		c.notch += take
		if c.notch >= len(c.payload) {
			*c = cell{}
			off++
		} else {
			break
		}
	}
	if off > 0 {
		b.shiftWindow(off)
	}
	return n
}
