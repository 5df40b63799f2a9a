package conn

import (
	"testing"

	"github.com/xtaci/srt-go/wire"
)

func TestBuildACKReportsRcvBufAckPoint(t *testing.T) {
	c := New(testConfig(), 0)
	c.Open()
	c.BeginConnect()
	c.CompleteConnect()
	c.hs.peerSocketID = 7

	ack, ok := c.BuildACK(1_234)
	if !ok {
		t.Fatalf("BuildACK ok = false on the first call, want true")
	}
	if ack.Type != wire.CtrlACK {
		t.Fatalf("Type = %v, want CtrlACK", ack.Type)
	}
	if ack.DestSocket != 7 {
		t.Fatalf("DestSocket = %d, want 7 (peer socket id)", ack.DestSocket)
	}
	if ack.TypeSpecific != c.cfg.InitialSeq {
		t.Fatalf("TypeSpecific = %d, want the rcv buffer's ack point %d", ack.TypeSpecific, c.cfg.InitialSeq)
	}
	if ack.TimestampUs != 1_234 {
		t.Fatalf("TimestampUs = %d, want 1234", ack.TimestampUs)
	}

	body, err := wire.DecodeAck(ack.Body)
	if err != nil {
		t.Fatalf("DecodeAck: %v", err)
	}
	if body.AvailBufSize == 0 {
		t.Fatalf("AvailBufSize = 0, want the rcv buffer's free capacity")
	}
}

func TestBuildACKSuppressesUnchangedAckPoint(t *testing.T) {
	c := New(testConfig(), 0)
	c.Open()
	c.BeginConnect()
	c.CompleteConnect()
	c.hs.peerSocketID = 7

	if _, ok := c.BuildACK(1_000); !ok {
		t.Fatalf("first BuildACK should report ok = true")
	}
	if _, ok := c.BuildACK(2_000); ok {
		t.Fatalf("second BuildACK with an unchanged ack point should report ok = false")
	}
}

func TestHandleACKFreesSendBufferAndRepliesACKACK(t *testing.T) {
	cfg := testConfig()
	cfg.SndBufCap = 1
	c := New(cfg, 0)
	c.Open()
	c.BeginConnect()
	c.CompleteConnect()
	c.hs.peerSocketID = 7

	firstSeq, _, ok := c.snd.Add([]byte("payload"), cfg.ChunkSize, 1, true, -1, 0)
	if !ok {
		t.Fatalf("Add failed")
	}
	if !c.snd.Full() {
		t.Fatalf("send buffer should be full at capacity 1")
	}

	ack := wire.ControlPacket{
		ControlHeader: wire.ControlHeader{
			Type:         wire.CtrlACK,
			TypeSpecific: firstSeq + 1,
			TimestampUs:  55,
		},
	}
	reply := c.HandleACK(ack)

	if c.snd.Full() {
		t.Fatalf("send buffer should no longer be full after Revoke past its only cell")
	}
	if reply.Type != wire.CtrlACKACK {
		t.Fatalf("reply.Type = %v, want CtrlACKACK", reply.Type)
	}
	if reply.TimestampUs != 55 {
		t.Fatalf("reply.TimestampUs = %d, want the ACK's own timestamp echoed back (55)", reply.TimestampUs)
	}
	if reply.DestSocket != 7 {
		t.Fatalf("reply.DestSocket = %d, want 7", reply.DestSocket)
	}
}
