package seq

import "time"

// epoch anchors the steady clock; every Now() call is relative to process
// start, so the core never observes wall-clock adjustments. This is the
// microsecond-resolution analogue of kcp-go's currentMs() monotonic helper,
// widened to match SRT's microsecond timestamp field.
var epoch = time.Now()

// Now returns microseconds since the steady clock's epoch. Monotonic:
// unaffected by NTP steps or local timezone changes.
func Now() int64 {
	return time.Since(epoch).Microseconds()
}

// NowTime returns the steady-clock instant as a time.Time, for interop with
// time.Timer/time.After based waits.
func NowTime() time.Time {
	return time.Now()
}

// FormatWall renders t using the system wall clock, for logging only; the
// core must never use this value to drive protocol timing.
func FormatWall(t time.Time) string {
	return t.Format("2006-01-02 15:04:05.000000")
}
