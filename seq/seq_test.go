package seq

import "testing"

func TestCmpBasic(t *testing.T) {
	if Cmp(5, 5) != 0 {
		t.Fatalf("Cmp(5,5) = %d, want 0", Cmp(5, 5))
	}
	if Cmp(6, 5) != 1 {
		t.Fatalf("Cmp(6,5) = %d, want 1", Cmp(6, 5))
	}
	if Cmp(5, 6) != -1 {
		t.Fatalf("Cmp(5,6) = %d, want -1", Cmp(5, 6))
	}
}

func TestIncDecRoundTrip(t *testing.T) {
	for _, s := range []uint32{0, 1, Max - 1, Max, Max / 2} {
		if Cmp(Inc(s), s) != 1 {
			t.Errorf("seqcmp(incseq(%d), %d) != 1", s, s)
		}
		if Cmp(Dec(s), s) != -1 {
			t.Errorf("seqcmp(decseq(%d), %d) != -1", s, s)
		}
		if Cmp(s, s) != 0 {
			t.Errorf("seqcmp(%d, %d) != 0", s, s)
		}
	}
}

func TestWrapAround(t *testing.T) {
	// Max wraps to 0 on increment.
	if Inc(Max) != 0 {
		t.Fatalf("Inc(Max) = %d, want 0", Inc(Max))
	}
	if Cmp(Inc(Max), Max) != 1 {
		t.Fatalf("wrap increment should still compare as +1 ahead")
	}
	// A sequence just past the wrap point is "ahead of" one just before it.
	if Cmp(2, Max-1) <= 0 {
		t.Fatalf("Cmp(2, Max-1) should be positive across the wrap, got %d", Cmp(2, Max-1))
	}
}

func TestLen(t *testing.T) {
	if Len(10, 10) != 1 {
		t.Fatalf("Len(10,10) = %d, want 1", Len(10, 10))
	}
	if Len(10, 13) != 4 {
		t.Fatalf("Len(10,13) = %d, want 4", Len(10, 13))
	}
}

func TestInRange(t *testing.T) {
	if !InRange(5, 0, 10) {
		t.Fatalf("5 should be in [0,10)")
	}
	if InRange(10, 0, 10) {
		t.Fatalf("10 should not be in [0,10)")
	}
	// wrap-aware range spanning the rollover point
	if !InRange(0, Max-2, 2) {
		t.Fatalf("0 should be in wrap-around range [Max-2, 2)")
	}
}
