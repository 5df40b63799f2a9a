package stats

import (
	"sort"
	"sync"
)

// BitrateEstimator tracks a sender's input bitrate, using a short
// fast-start window to get a usable estimate immediately after a socket
// starts sending and settling into a longer running average once enough
// history has accumulated (spec §4.K).
type BitrateEstimator struct {
	mu sync.Mutex

	windowStart int64 // microseconds, caller-supplied clock
	windowBytes uint64
	started     bool

	fastStart bool
	bps       float64
}

const (
	fastStartWindowUs = 500_000   // 0.5s
	runningWindowUs   = 1_000_000 // 1s
)

// NewBitrateEstimator returns an estimator starting in fast-start mode.
func NewBitrateEstimator() *BitrateEstimator {
	return &BitrateEstimator{fastStart: true}
}

// AddSample folds nBytes sent at nowUs into the running estimate, rolling
// the window over once it has accumulated the configured duration.
func (b *BitrateEstimator) AddSample(nowUs int64, nBytes uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		b.windowStart = nowUs
		b.started = true
	}
	b.windowBytes += nBytes

	window := int64(runningWindowUs)
	if b.fastStart {
		window = fastStartWindowUs
	}

	elapsed := nowUs - b.windowStart
	if elapsed <= 0 {
		return
	}
	if elapsed >= window {
		b.bps = float64(b.windowBytes) * 8 * 1_000_000 / float64(elapsed)
		b.windowStart = nowUs
		b.windowBytes = 0
		b.fastStart = false
	}
}

// BitsPerSecond returns the most recently computed estimate.
func (b *BitrateEstimator) BitsPerSecond() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bps
}

// arrivalRateSamples is the number of inter-arrival samples the receiver
// keeps for its median packet-arrival-rate filter (spec §4.K).
const arrivalRateSamples = 16

// ArrivalRateFilter estimates a receiver's incoming packet rate as the
// median of the last 16 inter-arrival intervals, which rejects isolated
// bursts and gaps better than a plain moving average.
type ArrivalRateFilter struct {
	mu       sync.Mutex
	lastUs   int64
	hasLast  bool
	samples  [arrivalRateSamples]int64
	count    int
	next     int
}

// NewArrivalRateFilter returns an empty filter.
func NewArrivalRateFilter() *ArrivalRateFilter { return &ArrivalRateFilter{} }

// OnPacketArrival records a packet's arrival time in microseconds.
func (a *ArrivalRateFilter) OnPacketArrival(nowUs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasLast {
		a.lastUs = nowUs
		a.hasLast = true
		return
	}
	interval := nowUs - a.lastUs
	a.lastUs = nowUs
	if interval <= 0 {
		return
	}

	a.samples[a.next] = interval
	a.next = (a.next + 1) % arrivalRateSamples
	if a.count < arrivalRateSamples {
		a.count++
	}
}

// PacketsPerSecond returns the packet rate implied by the median of the
// collected inter-arrival intervals, or 0 if too few samples exist yet.
func (a *ArrivalRateFilter) PacketsPerSecond() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count == 0 {
		return 0
	}
	sorted := append([]int64(nil), a.samples[:a.count]...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	median := sorted[len(sorted)/2]
	if median <= 0 {
		return 0
	}
	return 1_000_000 / float64(median)
}
