package stats

import "sync"

// avgIIR16 mirrors avg_iir<16>: an exponential moving average that folds
// a new sample in at weight 1/16.
func avgIIR16(avg, sample uint64) uint64 {
	if avg == 0 {
		return sample
	}
	return avg - avg/16 + sample/16
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// JitterTracer tracks three independent RFC3550-style jitter estimates —
// arrival, delivery, and send — each as the smoothed mean absolute change
// in successive relative-transit-time samples, grounded in
// original_source/srtcore/jitter_tracer.cpp.
type JitterTracer struct {
	mu sync.Mutex

	prevArrival int64
	prevDeliver int64
	prevSend    int64

	hasArrival, hasDeliver, hasSend bool

	arrivalJitter uint64
	deliverJitter uint64
	sendJitter    uint64
}

// NewJitterTracer returns a tracer with all three estimates at zero.
func NewJitterTracer() *JitterTracer { return &JitterTracer{} }

// OnDataPktArrival records a data packet's arrival, given the difference
// in microseconds between wall-clock arrival time and the TSBPD-predicted
// arrival time (now - (tsbpdBase + timestamp)).
func (j *JitterTracer) OnDataPktArrival(delayUs int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.hasArrival {
		di := uint64(absInt64(delayUs - j.prevArrival))
		j.arrivalJitter = avgIIR16(j.arrivalJitter, di)
	}
	j.prevArrival = delayUs
	j.hasArrival = true
}

// OnDataPktDelivery records a data packet's delivery to the application,
// given the difference in microseconds between wall-clock delivery time
// and the packet's TSBPD target time.
func (j *JitterTracer) OnDataPktDelivery(delayUs int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.hasDeliver {
		di := uint64(absInt64(delayUs - j.prevDeliver))
		j.deliverJitter = avgIIR16(j.deliverJitter, di)
	}
	j.prevDeliver = delayUs
	j.hasDeliver = true
}

// OnDataPktSent records a data packet's transmission, given the
// difference in microseconds between wall-clock send time and the
// packet's origin timestamp.
func (j *JitterTracer) OnDataPktSent(delayUs int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.hasSend {
		di := uint64(absInt64(delayUs - j.prevSend))
		j.sendJitter = avgIIR16(j.sendJitter, di)
	}
	j.prevSend = delayUs
	j.hasSend = true
}

func (j *JitterTracer) ArrivalJitter() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.arrivalJitter
}

func (j *JitterTracer) DeliveryJitter() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.deliverJitter
}

func (j *JitterTracer) SendingJitter() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sendJitter
}
