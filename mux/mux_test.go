package mux

import (
	"net"
	"testing"
	"time"

	"github.com/xtaci/srt-go/channel"
	"github.com/xtaci/srt-go/conn"
)

func newLoopbackMux(t *testing.T) (*Mux, net.Addr) {
	t.Helper()
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	ch := channel.New(pc)
	return New(ch), pc.LocalAddr()
}

func testDialConfig() conn.Config {
	return conn.Config{
		ChunkSize: 1316,
		SndBufCap: 64,
		RcvBufCap: 64,
		NAKMinUs:  20_000,
	}
}

func TestMuxHandshakeEndToEnd(t *testing.T) {
	listenerMux, listenerAddr := newLoopbackMux(t)
	defer listenerMux.Close()
	listenerMux.Listen(testDialConfig(), "")

	callerMux, _ := newLoopbackMux(t)
	defer callerMux.Close()

	type dialResult struct {
		c   *conn.Conn
		err error
	}
	dialDone := make(chan dialResult, 1)
	go func() {
		c, err := callerMux.Dial(listenerAddr, testDialConfig(), "")
		dialDone <- dialResult{c, err}
	}()

	acceptDone := make(chan *conn.Conn, 1)
	go func() {
		c, err := listenerMux.Accept()
		if err != nil {
			acceptDone <- nil
			return
		}
		acceptDone <- c
	}()

	var dialed *conn.Conn
	select {
	case r := <-dialDone:
		if r.err != nil {
			t.Fatalf("Dial: %v", r.err)
		}
		dialed = r.c
	case <-time.After(2 * time.Second):
		t.Fatalf("Dial did not complete in time")
	}

	select {
	case accepted := <-acceptDone:
		if accepted == nil {
			t.Fatalf("Accept returned no connection")
		}
		if accepted.State() != conn.Connected {
			t.Fatalf("accepted connection state = %v, want Connected", accepted.State())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Accept did not complete in time")
	}

	if dialed.State() != conn.Connected {
		t.Fatalf("dialed connection state = %v, want Connected", dialed.State())
	}
}

// TestMuxDataRoundTrip proves the sender thread (scheduler-driven) and the
// reader thread's demux both work end to end: a Send on the caller side
// must arrive as a readable message on the accepted side.
func TestMuxDataRoundTrip(t *testing.T) {
	listenerMux, listenerAddr := newLoopbackMux(t)
	defer listenerMux.Close()
	listenerMux.Listen(testDialConfig(), "")

	callerMux, _ := newLoopbackMux(t)
	defer callerMux.Close()

	type dialResult struct {
		c   *conn.Conn
		err error
	}
	dialDone := make(chan dialResult, 1)
	go func() {
		c, err := callerMux.Dial(listenerAddr, testDialConfig(), "")
		dialDone <- dialResult{c, err}
	}()

	acceptDone := make(chan *conn.Conn, 1)
	go func() {
		c, err := listenerMux.Accept()
		if err != nil {
			acceptDone <- nil
			return
		}
		acceptDone <- c
	}()

	var dialed, accepted *conn.Conn
	select {
	case r := <-dialDone:
		if r.err != nil {
			t.Fatalf("Dial: %v", r.err)
		}
		dialed = r.c
	case <-time.After(2 * time.Second):
		t.Fatalf("Dial did not complete in time")
	}
	select {
	case c := <-acceptDone:
		if c == nil {
			t.Fatalf("Accept returned no connection")
		}
		accepted = c
	case <-time.After(2 * time.Second):
		t.Fatalf("Accept did not complete in time")
	}

	payload := []byte("hello over srt-go")
	if _, err := dialed.Send(payload, true, -1, 0); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if accepted.RcvBuf().IsReadableMessage() {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("payload never became readable on the accepted side")
		case <-time.After(10 * time.Millisecond):
		}
	}

	buf := make([]byte, 2048)
	n, _, _, ok := accepted.RcvBuf().ReadMessage(buf)
	if !ok {
		t.Fatalf("ReadMessage returned ok=false")
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("received payload = %q, want %q", buf[:n], payload)
	}
}

// TestMuxACKReopensSendWindow proves the periodic Control tick's ACK half
// of the loop actually frees flight window space: fill the send buffer to
// capacity, then wait for an ACK cycle from the peer to revoke it.
func TestMuxACKReopensSendWindow(t *testing.T) {
	listenerMux, listenerAddr := newLoopbackMux(t)
	defer listenerMux.Close()

	smallCfg := testDialConfig()
	smallCfg.SndBufCap = 2
	smallCfg.RcvBufCap = 64
	listenerMux.Listen(smallCfg, "")

	callerMux, _ := newLoopbackMux(t)
	defer callerMux.Close()

	type dialResult struct {
		c   *conn.Conn
		err error
	}
	dialDone := make(chan dialResult, 1)
	go func() {
		c, err := callerMux.Dial(listenerAddr, smallCfg, "")
		dialDone <- dialResult{c, err}
	}()

	acceptDone := make(chan *conn.Conn, 1)
	go func() {
		c, err := listenerMux.Accept()
		if err != nil {
			acceptDone <- nil
			return
		}
		acceptDone <- c
	}()

	var dialed *conn.Conn
	select {
	case r := <-dialDone:
		if r.err != nil {
			t.Fatalf("Dial: %v", r.err)
		}
		dialed = r.c
	case <-time.After(2 * time.Second):
		t.Fatalf("Dial did not complete in time")
	}
	select {
	case c := <-acceptDone:
		if c == nil {
			t.Fatalf("Accept returned no connection")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Accept did not complete in time")
	}

	if _, err := dialed.Send([]byte("one"), true, -1, 0); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if _, err := dialed.Send([]byte("two"), true, -1, 0); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if !dialed.SndBuf().Full() {
		t.Fatalf("send buffer should be full at capacity 2 after two sends")
	}

	deadline := time.After(2 * time.Second)
	for dialed.SndBuf().Full() {
		select {
		case <-deadline:
			t.Fatalf("send buffer never reopened: no ACK cycle revoked it")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if _, err := dialed.Send([]byte("three"), true, -1, 0); err != nil {
		t.Fatalf("Send after window reopened: %v", err)
	}
}
