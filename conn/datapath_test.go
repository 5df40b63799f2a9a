package conn

import (
	"testing"

	"github.com/xtaci/srt-go/scheduler"
)

func TestBuildDataPacketRegular(t *testing.T) {
	c := New(testConfig(), 0)
	c.Open()
	c.BeginConnect()
	c.CompleteConnect()
	c.hs.peerSocketID = 99

	if _, err := c.Send([]byte("payload"), true, -1, 0); err != nil {
		t.Fatalf("Send: %v", err)
	}

	pkt, action := c.BuildDataPacket(c.cfg.InitialSeq, scheduler.Regular, 1_000)
	if action != scheduler.ActionSend {
		t.Fatalf("action = %v, want ActionSend", action)
	}
	if pkt.DestSocket != 99 {
		t.Fatalf("DestSocket = %d, want 99 (peer socket id stamped from handshake)", pkt.DestSocket)
	}
	if string(pkt.Payload) != "payload" {
		t.Fatalf("payload = %q, want %q", pkt.Payload, "payload")
	}
}

func TestBuildDataPacketRegularEmptyWhenNothingQueued(t *testing.T) {
	c := New(testConfig(), 0)
	c.Open()
	c.BeginConnect()
	c.CompleteConnect()

	_, action := c.BuildDataPacket(0, scheduler.Regular, 1_000)
	if action != scheduler.ActionSkip {
		t.Fatalf("action = %v, want ActionSkip when send buffer is empty", action)
	}
}

func TestBuildDataPacketRetransmitDropsExpiredTTL(t *testing.T) {
	c := New(testConfig(), 0)
	c.Open()
	c.BeginConnect()
	c.CompleteConnect()

	firstSeq, _, ok := c.snd.Add([]byte("payload"), c.cfg.ChunkSize, 1, true, 1, 0)
	if !ok {
		t.Fatalf("Add failed")
	}

	// nowUs far past the 1ms TTL: ReadOld should report drop=true.
	_, action := c.BuildDataPacket(firstSeq, scheduler.Retransmit, 1_000_000)
	if action != scheduler.ActionDrop {
		t.Fatalf("action = %v, want ActionDrop for an expired retransmit", action)
	}
}

func TestBuildDataPacketUnknownKindSkips(t *testing.T) {
	c := New(testConfig(), 0)
	_, action := c.BuildDataPacket(0, scheduler.Control, 0)
	if action != scheduler.ActionSkip {
		t.Fatalf("action = %v, want ActionSkip for a non-data task kind", action)
	}
}
