package tsbpd

import "testing"

func TestPlayTimeIncludesDelay(t *testing.T) {
	tb := New(1_000_000, 200_000)
	got := tb.PlayTime(0)
	want := int64(1_000_000 + 200_000)
	if got != want {
		t.Fatalf("PlayTime(0) = %d, want %d", got, want)
	}
}

// TestDeliveryTimingScenario mirrors spec scenario 4: a packet with
// timestamp 0 inserted at wall time T with delay=200ms must not be ready
// at T+199ms but must be ready at T+200ms.
func TestDeliveryTimingScenario(t *testing.T) {
	const wallT = int64(5_000_000)
	tb := New(wallT, 200_000)
	playUs := tb.PlayTime(0)

	beforeUs := wallT + 199_000
	atUs := wallT + 200_000

	if beforeUs >= playUs {
		t.Fatalf("expected not-yet-ready instant to precede play time")
	}
	if atUs < playUs {
		t.Fatalf("expected ready instant to reach play time")
	}
}

func TestWrapCheckTriggersNearPeriodEnd(t *testing.T) {
	tb := New(0, 0)
	tb.UpdateTimebase(uint32(wrapPeriodUs - preWrapWindowUs + 1))
	if !tb.wrapCheck {
		t.Fatalf("expected wrap-check to be armed near the end of the timestamp period")
	}
}

func TestOriginTimestampRoundTripsThroughPlayTime(t *testing.T) {
	const base = int64(10_000_000)
	tb := New(base, 0)
	nowUs := base + 42_000
	ts := tb.OriginTimestamp(nowUs)
	if ts != 42_000 {
		t.Fatalf("OriginTimestamp = %d, want 42000", ts)
	}
}

func TestBaseAdvancesOnObservedWrap(t *testing.T) {
	tb := New(1000, 0)
	tb.UpdateTimebase(uint32(wrapPeriodUs - 1)) // arm wrap-check
	before := tb.PlayTime(0)
	tb.UpdateTimebase(100) // small ts while armed: peer has wrapped
	after := tb.PlayTime(0)
	if after-before != wrapPeriodUs {
		t.Fatalf("base advance = %d, want %d", after-before, wrapPeriodUs)
	}
}
