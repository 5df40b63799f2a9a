package stats

import "testing"

func TestCountersSnapshot(t *testing.T) {
	var c Counters
	c.AddPktSent(10)
	c.AddBytesSent(1500)
	c.AddPktRcvLoss(2)

	snap := c.Snapshot()
	if snap.PktSent != 10 || snap.BytesSent != 1500 || snap.PktRcvLoss != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestJitterTracerSmoothsConstantDelay(t *testing.T) {
	j := NewJitterTracer()
	for i := 0; i < 32; i++ {
		j.OnDataPktArrival(1000) // constant relative delay: jitter should converge to 0
	}
	if got := j.ArrivalJitter(); got != 0 {
		t.Fatalf("ArrivalJitter = %d, want 0 for constant delay", got)
	}
}

func TestJitterTracerReactsToVariance(t *testing.T) {
	j := NewJitterTracer()
	for i := 0; i < 32; i++ {
		if i%2 == 0 {
			j.OnDataPktDelivery(1000)
		} else {
			j.OnDataPktDelivery(2000)
		}
	}
	if got := j.DeliveryJitter(); got == 0 {
		t.Fatalf("DeliveryJitter = 0, want nonzero under alternating delay")
	}
}

func TestBitrateEstimatorFastStart(t *testing.T) {
	b := NewBitrateEstimator()
	b.AddSample(0, 1000)
	b.AddSample(fastStartWindowUs, 1000) // rolls the fast-start window over

	if bps := b.BitsPerSecond(); bps <= 0 {
		t.Fatalf("BitsPerSecond = %v, want > 0 after fast-start window closes", bps)
	}
}

func TestArrivalRateFilterMedian(t *testing.T) {
	a := NewArrivalRateFilter()
	now := int64(0)
	for i := 0; i < arrivalRateSamples+1; i++ {
		a.OnPacketArrival(now)
		now += 1000 // 1ms between packets -> 1000 pkt/s
	}
	pps := a.PacketsPerSecond()
	if pps < 900 || pps > 1100 {
		t.Fatalf("PacketsPerSecond = %v, want ~1000", pps)
	}
}
