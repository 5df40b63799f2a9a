package seq

import "sync"

// driftSampleWindow is the number of ACKACK round-trip samples averaged
// before the drift tracker decides whether to shift the time base.
const driftSampleWindow = 1000

// DriftOverdriftThreshold bounds how much of the measured mean drift is
// folded into the time base in one update (spec §4.A: "shifted by exactly
// that threshold"), and caps how far a single bad sample can move the base
// (spec §9 open question on backward peer-clock jumps).
const DriftOverdriftThreshold = 5000 // microseconds

// DriftTracker maintains a moving mean of signed microsecond drift samples
// (one per ACKACK round trip) and, once it has accumulated enough samples,
// folds any systematic bias into a caller-supplied time base via Overdrift.
type DriftTracker struct {
	mu      sync.Mutex
	sum     int64
	count   int
	overall int64 // accumulated overdrift applied so far, for inspection/tests
}

// NewDriftTracker returns a tracker ready to accept samples.
func NewDriftTracker() *DriftTracker { return &DriftTracker{} }

// AddSample folds a new signed microsecond sample into the running mean.
// Every driftSampleWindow samples it reports whether an overdrift shift is
// due and, if so, the exact (signed, threshold-bounded) amount to apply;
// the mean is reduced by that amount per spec §4.A ("the mean is reduced
// by the shift").
func (d *DriftTracker) AddSample(sampleUs int64) (shift int64, apply bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sum += sampleUs
	d.count++
	if d.count < driftSampleWindow {
		return 0, false
	}

	mean := d.sum / int64(d.count)
	d.count = 0
	d.sum = 0

	if mean > DriftOverdriftThreshold {
		shift = DriftOverdriftThreshold
	} else if mean < -DriftOverdriftThreshold {
		shift = -DriftOverdriftThreshold
	} else {
		return 0, false
	}

	d.overall += shift
	// carry the unshifted remainder forward so repeated small biases still
	// accumulate correctly across updates.
	d.sum = (mean - shift) * 1
	d.count = 1
	return shift, true
}

// Overall returns the cumulative overdrift applied across the tracker's
// lifetime, for diagnostics and tests.
func (d *DriftTracker) Overall() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overall
}
