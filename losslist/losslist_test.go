package losslist

import "testing"

func TestInsertMergesAdjacentRanges(t *testing.T) {
	l := New()
	l.Insert(10, 15)
	l.Insert(16, 20)

	ranges := l.Ranges()
	if len(ranges) != 1 || ranges[0].Lo != 10 || ranges[0].Hi != 20 {
		t.Fatalf("expected merged [10,20], got %+v", ranges)
	}
}

func TestRemoveSplitsRange(t *testing.T) {
	l := New()
	l.Insert(10, 20)
	l.Remove(15, 15)

	ranges := l.Ranges()
	if len(ranges) != 2 {
		t.Fatalf("expected split into two ranges, got %+v", ranges)
	}
	if ranges[0].Lo != 10 || ranges[0].Hi != 14 {
		t.Errorf("first range = %+v", ranges[0])
	}
	if ranges[1].Lo != 16 || ranges[1].Hi != 20 {
		t.Errorf("second range = %+v", ranges[1])
	}
}

func TestRemoveClearsEntireRange(t *testing.T) {
	l := New()
	l.Insert(5, 9)
	l.Remove(5, 9)
	if !l.Empty() {
		t.Fatalf("expected loss list to be empty after full removal")
	}
}

func TestFreshLossExpiresAfterTTL(t *testing.T) {
	l := New()
	l.Insert(1, 1)

	first := l.OnACKCycle()
	if len(first) != 1 {
		t.Fatalf("expected the range to be fresh on first cycle, got %+v", first)
	}

	second := l.OnACKCycle()
	if len(second) != 0 {
		t.Fatalf("expected no fresh ranges after TTL expiry, got %+v", second)
	}
}
