package rcvbuf

import "testing"

func TestInsertThenReadMessageRoundTrip(t *testing.T) {
	b := New(32, 0, false)

	r := b.Insert(0, 1, pbSolo, true, []byte("hello"), 0)
	if r.Outcome != Inserted {
		t.Fatalf("outcome = %v, want Inserted", r.Outcome)
	}

	if !b.IsReadableMessage() {
		t.Fatalf("expected message to be readable")
	}

	buf := make([]byte, 64)
	n, lo, hi, ok := b.ReadMessage(buf)
	if !ok || n != 5 || string(buf[:n]) != "hello" {
		t.Fatalf("ReadMessage = (%d,%q,ok=%v), want (5,\"hello\",true)", n, buf[:n], ok)
	}
	if lo != 0 || hi != 0 {
		t.Fatalf("seq range = [%d,%d], want [0,0]", lo, hi)
	}
}

func TestDuplicateInsertIsRedundant(t *testing.T) {
	b := New(32, 0, false)
	b.Insert(5, 1, pbSolo, true, []byte("x"), 0)
	r := b.Insert(5, 1, pbSolo, true, []byte("x"), 0)
	if r.Outcome != Redundant {
		t.Fatalf("outcome = %v, want Redundant", r.Outcome)
	}
}

func TestBelatedInsertBeforeStart(t *testing.T) {
	b := New(32, 10, false)
	r := b.Insert(5, 1, pbSolo, true, []byte("x"), 0)
	if r.Outcome != Belated {
		t.Fatalf("outcome = %v, want Belated", r.Outcome)
	}
}

func TestDiscrepancyBeyondCapacity(t *testing.T) {
	b := New(4, 0, false)
	r := b.Insert(100, 1, pbSolo, true, []byte("x"), 0)
	if r.Outcome != Discrepancy {
		t.Fatalf("outcome = %v, want Discrepancy", r.Outcome)
	}
}

func TestAckPointAdvancesOnlyOverContiguousArrivals(t *testing.T) {
	b := New(32, 0, false)
	if p := b.AckPoint(); p != 0 {
		t.Fatalf("AckPoint on an empty buffer = %d, want 0", p)
	}

	b.Insert(0, 1, pbSolo, true, []byte("a"), 0)
	if p := b.AckPoint(); p != 1 {
		t.Fatalf("AckPoint after seq 0 arrives = %d, want 1", p)
	}

	// seq 2 arrives leaving a gap at seq 1: the ack point must not jump past it.
	r := b.Insert(2, 1, pbSolo, true, []byte("c"), 0)
	if !r.HasGap {
		t.Fatalf("expected a gap to be reported when seq 1 is skipped")
	}
	if p := b.AckPoint(); p != 1 {
		t.Fatalf("AckPoint with seq 1 missing = %d, want still 1", p)
	}

	b.Insert(1, 1, pbSolo, true, []byte("b"), 0)
	if p := b.AckPoint(); p != 3 {
		t.Fatalf("AckPoint after the gap fills = %d, want 3", p)
	}
}

func TestGapBlocksMultiPacketMessageUntilFilled(t *testing.T) {
	b := New(32, 0, false)
	b.Insert(0, 1, pbFirst, true, []byte("AAAA"), 0)
	b.Insert(2, 1, pbLast, true, []byte("CCCC"), 0) // seq 1 missing

	if b.IsReadableMessage() {
		t.Fatalf("message should not be readable with a gap inside it")
	}

	r := b.Insert(1, 1, pbMiddle, true, []byte("BBBB"), 0)
	if !r.Outcome.Inserted() {
		t.Fatalf("expected gap fill to insert cleanly")
	}
	if !b.IsReadableMessage() {
		t.Fatalf("message should be readable once the gap is filled")
	}

	buf := make([]byte, 64)
	n, _, _, ok := b.ReadMessage(buf)
	if !ok || string(buf[:n]) != "AAAABBBBCCCC" {
		t.Fatalf("ReadMessage = %q, ok=%v", buf[:n], ok)
	}
}

func (o Outcome) Inserted() bool { return o == Inserted }

func TestTSBPDReadinessGatesOnPlayTime(t *testing.T) {
	b := New(32, 0, false)
	const delayUs = 200_000
	b.Insert(0, 1, pbSolo, true, []byte("x"), delayUs)

	if b.IsReadableTSBPD(delayUs - 1) {
		t.Fatalf("should not be ready 1us before play time")
	}
	if !b.IsReadableTSBPD(delayUs) {
		t.Fatalf("should be ready exactly at play time")
	}
}

func TestOutOfOrderMessageDeliversEarly(t *testing.T) {
	b := New(32, 0, true)
	b.Insert(0, 1, pbFirst, true, []byte("A"), 0) // in-order message 1, incomplete
	r := b.Insert(5, 2, pbSolo, false, []byte("B"), 0) // out-of-order complete message

	if !r.Outcome.Inserted() {
		t.Fatalf("expected insertion to succeed")
	}
	if !b.IsReadableMessage() {
		t.Fatalf("expected the complete out-of-order message to be readable")
	}
}

func TestDropUpToSkipsMissingAndDiscardsPresent(t *testing.T) {
	b := New(32, 0, false)
	b.Insert(0, 1, pbSolo, true, []byte("x"), 0)
	// seq 1 missing
	b.Insert(2, 2, pbSolo, true, []byte("y"), 0)

	missing, discarded := b.DropUpTo(3)
	if missing != 1 || discarded != 2 {
		t.Fatalf("DropUpTo = (missing=%d, discarded=%d), want (1,2)", missing, discarded)
	}
}
