// Package losslist implements the receiver's loss list (spec §4.F): a
// sorted list of contiguous lost sequence ranges, with a secondary
// "fresh loss" sublist that ages out in ACK cycles rather than wall-clock
// time and controls when a range is eligible to be re-reported in a NAK.
// The sender's loss schedule is kept inline in sndbuf's cells per spec
// §4.D and is not modeled here.
package losslist

import (
	"sort"
	"sync"

	"github.com/xtaci/srt-go/seq"
)

// freshLossTTL is the number of ACK cycles a freshly-discovered loss range
// stays eligible for immediate re-NAK before falling back to the regular
// NAK-period cadence; spec §9 resolves the "TTL as ACK cycles, not
// wall-clock" open question explicitly in favor of this unit.
const freshLossTTL = 1

type rangeEntry struct {
	lo, hi uint32 // inclusive, wrap-aware via seq.Cmp
}

type freshEntry struct {
	lo, hi     uint32
	ttlCycles  int
}

// List is the receiver's view of currently-missing sequence numbers.
type List struct {
	mu     sync.Mutex
	ranges []rangeEntry // sorted ascending by lo, non-overlapping, non-adjacent
	fresh  []freshEntry
}

// New returns an empty loss list.
func New() *List { return &List{} }

// Insert records [lo, hi] (inclusive) as missing, merging with any
// adjacent or overlapping existing range, and marks the new portion as
// freshly lost so it is immediately eligible for a NAK.
func (l *List) Insert(lo, hi uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.insertRange(lo, hi)
	l.fresh = append(l.fresh, freshEntry{lo: lo, hi: hi, ttlCycles: freshLossTTL})
}

func (l *List) insertRange(lo, hi uint32) {
	merged := rangeEntry{lo: lo, hi: hi}
	var out []rangeEntry
	inserted := false

	for _, r := range l.ranges {
		// r entirely precedes merged with a gap: keep as-is.
		if seq.Cmp(r.hi, merged.lo) < -1 {
			out = append(out, r)
			continue
		}
		// r entirely follows merged with a gap: flush merged first.
		if seq.Cmp(r.lo, merged.hi) > 1 {
			if !inserted {
				out = append(out, merged)
				inserted = true
			}
			out = append(out, r)
			continue
		}
		// Overlap or adjacency: fold r into merged.
		if seq.Cmp(r.lo, merged.lo) < 0 {
			merged.lo = r.lo
		}
		if seq.Cmp(r.hi, merged.hi) > 0 {
			merged.hi = r.hi
		}
	}
	if !inserted {
		out = append(out, merged)
	}

	sort.Slice(out, func(i, j int) bool { return seq.Cmp(out[i].lo, out[j].lo) < 0 })
	l.ranges = out
}

// Remove clears sequence numbers [lo, hi] from the loss list, typically
// because a retransmit or late arrival filled the gap. It may split an
// existing range.
func (l *List) Remove(lo, hi uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeRange(lo, hi)
}

func (l *List) removeRange(lo, hi uint32) {
	var out []rangeEntry
	for _, r := range l.ranges {
		if seq.Cmp(hi, r.lo) < 0 || seq.Cmp(lo, r.hi) > 0 {
			out = append(out, r)
			continue
		}
		if seq.Cmp(lo, r.lo) > 0 {
			out = append(out, rangeEntry{lo: r.lo, hi: seq.Dec(lo)})
		}
		if seq.Cmp(hi, r.hi) < 0 {
			out = append(out, rangeEntry{lo: seq.Inc(hi), hi: r.hi})
		}
	}
	l.ranges = out
}

// Empty reports whether the loss list currently tracks no missing ranges.
func (l *List) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ranges) == 0
}

// Ranges returns a snapshot of all currently tracked missing ranges,
// ascending by sequence number.
func (l *List) Ranges() []struct{ Lo, Hi uint32 } {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]struct{ Lo, Hi uint32 }, len(l.ranges))
	for i, r := range l.ranges {
		out[i] = struct{ Lo, Hi uint32 }{r.lo, r.hi}
	}
	return out
}

// OnACKCycle ages the fresh-loss sublist by one ACK cycle, dropping
// entries whose TTL has expired; it returns the ranges that are still
// fresh (eligible for immediate re-NAK this cycle) before aging them.
func (l *List) OnACKCycle() []struct{ Lo, Hi uint32 } {
	l.mu.Lock()
	defer l.mu.Unlock()

	still := l.fresh[:0]
	out := make([]struct{ Lo, Hi uint32 }, 0, len(l.fresh))
	for _, f := range l.fresh {
		out = append(out, struct{ Lo, Hi uint32 }{f.lo, f.hi})
		f.ttlCycles--
		if f.ttlCycles > 0 {
			still = append(still, f)
		}
	}
	l.fresh = still
	return out
}
