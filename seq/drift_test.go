package seq

import "testing"

func TestDriftTrackerAppliesThreshold(t *testing.T) {
	d := NewDriftTracker()
	const sample = int64(8000) // above the 5ms threshold

	var lastShift int64
	var applied bool
	for i := 0; i < driftSampleWindow; i++ {
		lastShift, applied = d.AddSample(sample)
	}
	if !applied {
		t.Fatalf("expected overdrift to be applied after %d samples", driftSampleWindow)
	}
	if lastShift != DriftOverdriftThreshold {
		t.Fatalf("shift = %d, want exactly +threshold %d", lastShift, DriftOverdriftThreshold)
	}
}

func TestDriftTrackerBelowThresholdNoShift(t *testing.T) {
	d := NewDriftTracker()
	const sample = int64(1000) // below threshold

	var applied bool
	for i := 0; i < driftSampleWindow; i++ {
		_, applied = d.AddSample(sample)
	}
	if applied {
		t.Fatalf("drift below threshold must not shift the time base")
	}
}

func TestDriftTrackerNegativeThreshold(t *testing.T) {
	d := NewDriftTracker()
	const sample = int64(-9000)

	var lastShift int64
	for i := 0; i < driftSampleWindow; i++ {
		lastShift, _ = d.AddSample(sample)
	}
	if lastShift != -DriftOverdriftThreshold {
		t.Fatalf("shift = %d, want exactly -threshold %d", lastShift, -DriftOverdriftThreshold)
	}
}
