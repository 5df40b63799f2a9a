package mux

import (
	"testing"
	"time"
)

func TestEpollWaitReturnsOnReadyEvent(t *testing.T) {
	e := NewEpoll()
	e.Add(7, EventReadable)

	done := make(chan []Ready, 1)
	go func() { done <- e.Wait(time.Second) }()

	time.Sleep(10 * time.Millisecond)
	e.SetReady(7, EventReadable)

	select {
	case ready := <-done:
		if len(ready) != 1 || ready[0].SocketID != 7 {
			t.Fatalf("Wait returned %+v, want socket 7 readable", ready)
		}
	case <-time.After(time.Second):
		t.Fatalf("Wait did not return after SetReady")
	}
}

func TestEpollIgnoresEventsOutsideWatchedMask(t *testing.T) {
	e := NewEpoll()
	e.Add(1, EventReadable)
	e.SetReady(1, EventWritable)

	done := make(chan []Ready, 1)
	go func() { done <- e.Wait(30 * time.Millisecond) }()

	select {
	case ready := <-done:
		if ready != nil {
			t.Fatalf("Wait returned %+v, want nil on timeout", ready)
		}
	case <-time.After(time.Second):
		t.Fatalf("Wait never returned")
	}
}

func TestEpollInterruptWakesInfiniteWait(t *testing.T) {
	e := NewEpoll()
	e.Add(3, EventReadable)

	start := time.Now()
	done := make(chan []Ready, 1)
	go func() { done <- e.Wait(0) }()

	time.Sleep(10 * time.Millisecond)
	e.Interrupt()

	select {
	case <-done:
		if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
			t.Fatalf("interrupt took %v to wake an infinite wait", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatalf("Interrupt did not wake Wait(0)")
	}
}
