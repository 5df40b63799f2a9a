// Package tsbpd implements the time-base state used to convert a data
// packet's 32-bit relative timestamp into an absolute local play time
// (spec §4.G): a base epoch, a wrap-check flag for the last 30 seconds
// before the 32-bit timestamp space rolls over, a configured delay, and a
// drift tracker reusing seq.DriftTracker's overdrift-threshold behavior.
package tsbpd

import (
	"sync"

	"github.com/xtaci/srt-go/seq"
)

// wrapPeriodUs is 2^32 microseconds, the timestamp field's full period.
const wrapPeriodUs = int64(1) << 32

// preWrapWindowUs is how long before the wrap point the wrap-check flag
// turns on, per spec §4.G.
const preWrapWindowUs = 30_000_000 // 30s

// TimeBase tracks the mapping from a peer's 32-bit relative timestamp to
// this receiver's local clock.
type TimeBase struct {
	mu sync.Mutex

	base      int64 // local microseconds corresponding to peer timestamp 0
	wrapCheck bool
	delayUs   int64
	drift     *seq.DriftTracker
}

// New returns a time base anchored at baseUs with the given TSBPD delay.
func New(baseUs int64, delayUs int64) *TimeBase {
	return &TimeBase{base: baseUs, delayUs: delayUs, drift: seq.NewDriftTracker()}
}

// Set reinitializes the time base, wrap-check flag, and delay, e.g. after
// a group-time synchronization handshake.
func (t *TimeBase) Set(baseUs int64, wrapCheck bool, delayUs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.base = baseUs
	t.wrapCheck = wrapCheck
	t.delayUs = delayUs
}

// ApplyGroupTime overrides the base with one computed cooperatively
// across a connection group sharing the same stream.
func (t *TimeBase) ApplyGroupTime(baseUs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.base = baseUs
}

// ApplyGroupDrift folds a drift value computed by another member of a
// connection group directly into the time base, bypassing this
// tracker's own sample accumulation.
func (t *TimeBase) ApplyGroupDrift(driftUs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.base += driftUs
}

// AddDriftSample folds one ACKACK round-trip's drift measurement (arrival
// time minus the predicted arrival time implied by ts and rttSample) into
// the tracker, returning the new cumulative drift and time base whenever
// an overdrift shift is applied this call.
func (t *TimeBase) AddDriftSample(ts uint32, arrivalUs int64, rttSampleUs int64) (newDriftUs int64, newBaseUs int64) {
	predicted := t.base + int64(ts)
	sample := arrivalUs - predicted - rttSampleUs/2

	shift, apply := t.drift.AddSample(sample)

	t.mu.Lock()
	defer t.mu.Unlock()
	if apply {
		t.base += shift
	}
	return t.drift.Overall(), t.base
}

// UpdateTimebase flips the wrap-check flag on when ts enters the last
// preWrapWindowUs of the timestamp space, and advances the base by a full
// period once ts has visibly wrapped back to a small value while
// wrap-check was on.
func (t *TimeBase) UpdateTimebase(ts uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	remaining := wrapPeriodUs - int64(ts)
	if remaining <= preWrapWindowUs {
		t.wrapCheck = true
		return
	}
	if t.wrapCheck && int64(ts) < preWrapWindowUs {
		t.base += wrapPeriodUs
		t.wrapCheck = false
	}
}

// PlayTime computes the absolute local play time for a data packet
// carrying relative timestamp ts: base + wrap-correction(ts) + ts +
// configured delay + accumulated drift. The wrap correction itself (spec
// §4.G) is folded into base by UpdateTimebase rather than recomputed
// here, since it depends on history (whether we have actually seen the
// pre-wrap window) rather than on ts alone.
func (t *TimeBase) PlayTime(ts uint32) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.base + int64(ts) + t.delayUs
}

// DelayUs returns the configured TSBPD delay.
func (t *TimeBase) DelayUs() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delayUs
}

// OriginTimestamp is the send-side inverse of PlayTime's wall-clock
// mapping: it folds nowUs back down to the 32-bit relative timestamp a
// data packet's header carries, wrapping at the field's 2^32us period.
func (t *TimeBase) OriginTimestamp(nowUs int64) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return uint32(uint64(nowUs-t.base) % uint64(wrapPeriodUs))
}
