package srt

import (
	"testing"
	"time"

	"github.com/xtaci/srt-go/conn"
)

func TestConnectAcceptSendRecvRoundTrip(t *testing.T) {
	listener := CreateSocket()
	if err := listener.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer listener.Close()
	if err := listener.Listen(8); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	laddr, err := listener.GetSockName()
	if err != nil {
		t.Fatalf("GetSockName: %v", err)
	}

	type acceptResult struct {
		s   *Socket
		err error
	}
	acceptDone := make(chan acceptResult, 1)
	go func() {
		s, _, err := listener.Accept()
		acceptDone <- acceptResult{s, err}
	}()

	caller := CreateSocket()
	defer caller.Close()
	if err := caller.Connect(laddr.String()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var accepted *Socket
	select {
	case r := <-acceptDone:
		if r.err != nil {
			t.Fatalf("Accept: %v", r.err)
		}
		accepted = r.s
	case <-time.After(2 * time.Second):
		t.Fatalf("Accept did not complete in time")
	}
	defer accepted.Close()

	if caller.GetSockState() != conn.Connected {
		t.Fatalf("caller state = %v, want Connected", caller.GetSockState())
	}
	if accepted.GetSockState() != conn.Connected {
		t.Fatalf("accepted state = %v, want Connected", accepted.GetSockState())
	}

	payload := []byte("hello over the public api")
	if _, err := caller.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 2048)
	n, err := accepted.Recv(buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("received %q, want %q", buf[:n], payload)
	}

	st, err := caller.BStats()
	if err != nil {
		t.Fatalf("BStats: %v", err)
	}
	if st.PktSent == 0 {
		t.Fatalf("expected PktSent > 0 after a successful send")
	}
}

func TestEpollWaitReportsReadableAfterSend(t *testing.T) {
	listener := CreateSocket()
	if err := listener.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer listener.Close()
	if err := listener.Listen(8); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	laddr, _ := listener.GetSockName()

	acceptDone := make(chan *Socket, 1)
	go func() {
		s, _, err := listener.Accept()
		if err != nil {
			acceptDone <- nil
			return
		}
		acceptDone <- s
	}()

	caller := CreateSocket()
	defer caller.Close()
	if err := caller.Connect(laddr.String()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var accepted *Socket
	select {
	case s := <-acceptDone:
		if s == nil {
			t.Fatalf("Accept failed")
		}
		accepted = s
	case <-time.After(2 * time.Second):
		t.Fatalf("Accept did not complete in time")
	}
	defer accepted.Close()

	ep := EpollCreate()
	defer ep.EpollRelease()
	if err := ep.EpollAddUsock(accepted, EventIn); err != nil {
		t.Fatalf("EpollAddUsock: %v", err)
	}

	if _, err := caller.Send([]byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ready := ep.EpollWait(2 * time.Second)
	if len(ready) != 1 || ready[0].Socket != accepted {
		t.Fatalf("EpollWait = %+v, want exactly the accepted socket readable", ready)
	}
}
