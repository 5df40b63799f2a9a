package sndbuf

import "testing"

func TestAddAssignsSequentialSeq(t *testing.T) {
	b := New(64, 0)
	first, _, ok := b.Add(make([]byte, 10), 100, 1, true, -1, 0)
	if !ok || first != 0 {
		t.Fatalf("first seq = %d, ok=%v, want 0, true", first, ok)
	}
	second, _, ok := b.Add(make([]byte, 10), 100, 2, true, -1, 0)
	if !ok || second != 1 {
		t.Fatalf("second seq = %d, ok=%v, want 1, true", second, ok)
	}
}

func TestAddFailsWhenFull(t *testing.T) {
	b := New(4, 0)
	for i := 0; i < 4; i++ {
		if _, _, ok := b.Add(make([]byte, 10), 100, uint32(i), true, -1, 0); !ok {
			t.Fatalf("Add %d should have succeeded", i)
		}
	}
	if _, _, ok := b.Add(make([]byte, 10), 100, 99, true, -1, 0); ok {
		t.Fatalf("Add should fail once the buffer is full")
	}
}

func TestExtractUniqueAdvancesOnce(t *testing.T) {
	b := New(8, 0)
	b.Add([]byte("hello"), 100, 1, true, -1, 0)
	b.Add([]byte("world"), 100, 2, true, -1, 0)

	c1, ok := b.ExtractUnique()
	if !ok || c1.Seq != 0 {
		t.Fatalf("first extract = %+v, ok=%v", c1, ok)
	}
	c2, ok := b.ExtractUnique()
	if !ok || c2.Seq != 1 {
		t.Fatalf("second extract = %+v, ok=%v", c2, ok)
	}
	if _, ok := b.ExtractUnique(); ok {
		t.Fatalf("expected no more unique packets")
	}
}

func TestRevokeFreesWindow(t *testing.T) {
	b := New(4, 0)
	for i := 0; i < 4; i++ {
		b.Add(make([]byte, 10), 100, uint32(i), true, -1, 0)
	}
	if !b.Full() {
		t.Fatalf("expected buffer to report full")
	}
	b.Revoke(2)
	if b.Full() {
		t.Fatalf("expected room after revoking 2 packets")
	}
	if n := b.WaitSend(); n != 2 {
		t.Fatalf("WaitSend = %d, want 2", n)
	}
}

// TestBufferWrapsUnderSteadyAckAndAdd exercises spec scenario 5: repeatedly
// ACK 2 and add 2 in a small buffer; the buffer size should stay constant
// and every cell stays internally consistent (no panics, no corrupted
// unique cursor).
func TestBufferWrapsUnderSteadyAckAndAdd(t *testing.T) {
	const cap = 4
	b := New(cap, 0)
	for i := 0; i < cap; i++ {
		b.Add(make([]byte, 8), 100, uint32(i), true, -1, 0)
	}

	for iter := 0; iter < 1000; iter++ {
		if n := b.WaitSend(); n != cap {
			t.Fatalf("iteration %d: WaitSend = %d, want %d", iter, n, cap)
		}
		// ack half the window, then refill it
		nextStart := seqAdd(b.startSeqForTest(), 2)
		b.Revoke(nextStart)
		for i := 0; i < 2; i++ {
			if _, _, ok := b.Add(make([]byte, 8), 100, uint32(iter*10+i), true, -1, 0); !ok {
				t.Fatalf("iteration %d: Add failed after revoke", iter)
			}
		}
	}
	if n := b.WaitSend(); n != cap {
		t.Fatalf("final WaitSend = %d, want %d", n, cap)
	}
}

func (b *Buffer) startSeqForTest() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startSeq
}

func seqAdd(s uint32, n uint32) uint32 {
	return s + n
}

func TestLossScheduleRoundTrip(t *testing.T) {
	b := New(16, 0)
	for i := 0; i < 8; i++ {
		b.Add(make([]byte, 8), 100, uint32(i), true, -1, 0)
	}

	b.InsertLoss(2, 4, 100)
	for _, want := range []uint32{2, 3, 4} {
		got, ok := b.PopLostSeq(200)
		if !ok {
			t.Fatalf("expected a lost seq to be due, got none (wanted %d)", want)
		}
		if got != want {
			t.Errorf("PopLostSeq = %d, want %d", got, want)
		}
	}
	if _, ok := b.PopLostSeq(200); ok {
		t.Fatalf("expected loss schedule to be drained")
	}
}

func TestReadOldReportsExpiredTTL(t *testing.T) {
	b := New(8, 0)
	b.Add(make([]byte, 8), 100, 0, true, 50, 0) // 50ms TTL

	_, drop, ok := b.ReadOld(0, 10_000) // 10ms elapsed, still alive
	if !ok || drop {
		t.Fatalf("expected packet alive at 10ms, drop=%v ok=%v", drop, ok)
	}

	_, drop, ok = b.ReadOld(0, 60_000) // 60ms elapsed, TTL expired
	if !ok || !drop {
		t.Fatalf("expected packet expired at 60ms, drop=%v ok=%v", drop, ok)
	}
}
