package conn

import (
	"net"
	"testing"

	"github.com/xtaci/srt-go/wire"
)

// wireReEncodeWithBadCookie rebuilds a conclusion packet with its cookie
// flipped to a value the listener never minted, simulating a forged or
// replayed handshake attempt.
func wireReEncodeWithBadCookie(pkt wire.ControlPacket) (wire.ControlPacket, error) {
	body, err := wire.DecodeHandshake(pkt.Body[:handshakeBodySizeOf(pkt.Body)])
	if err != nil {
		return wire.ControlPacket{}, err
	}
	body.SynCookie ^= 0xDEADBEEF

	out := wire.EncodeHandshake(body)
	out = append(out, pkt.Body[handshakeBodySizeOf(pkt.Body):]...)
	pkt.Body = out
	return pkt, nil
}

func handshakeTestConfig(socketID uint32) Config {
	return Config{
		SocketID:     socketID,
		ChunkSize:    1316,
		SndBufCap:    64,
		RcvBufCap:    64,
		TSBPDEnabled: true,
		LatencyUs:    120_000,
		NAKMinUs:     20_000,
	}
}

func TestFiveWayHandshakeHappyPath(t *testing.T) {
	caller := New(handshakeTestConfig(1), 0)
	caller.Open()

	listener := New(handshakeTestConfig(2), 0)
	listener.Open()

	peerOfListener, _ := net.ResolveUDPAddr("udp", "10.0.0.1:5000")
	peerOfCaller, _ := net.ResolveUDPAddr("udp", "10.0.0.2:6000")

	induction := caller.BuildInduction(0)

	inductionReply, err := listener.HandleInduction(peerOfListener, induction, 0)
	if err != nil {
		t.Fatalf("HandleInduction: %v", err)
	}

	if !caller.BeginConnect() {
		t.Fatalf("caller BeginConnect should succeed from Opened")
	}

	conclusion, err := caller.BuildConclusion(peerOfCaller, inductionReply, 0)
	if err != nil {
		t.Fatalf("BuildConclusion: %v", err)
	}
	if caller.PeerCookie() == 0 {
		t.Fatalf("expected caller to record a nonzero peer cookie")
	}

	conclusionReply, err := listener.HandleConclusion(peerOfListener, conclusion, 0)
	if err != nil {
		t.Fatalf("HandleConclusion: %v", err)
	}
	if listener.State() != Connected {
		t.Fatalf("listener state after HandleConclusion = %v, want Connected", listener.State())
	}

	if err := caller.HandleConclusionReply(peerOfCaller, conclusionReply); err != nil {
		t.Fatalf("HandleConclusionReply: %v", err)
	}
	if caller.State() != Connected {
		t.Fatalf("caller state after HandleConclusionReply = %v, want Connected", caller.State())
	}
	if caller.PeerSocketID() != 2 {
		t.Fatalf("caller PeerSocketID = %d, want 2 (the listener's socket id)", caller.PeerSocketID())
	}
	if listener.PeerSocketID() != 1 {
		t.Fatalf("listener PeerSocketID = %d, want 1 (the caller's socket id)", listener.PeerSocketID())
	}
}

func TestHandshakeRejectsForgedCookie(t *testing.T) {
	listener := New(handshakeTestConfig(2), 0)
	listener.Open()

	peer, _ := net.ResolveUDPAddr("udp", "10.0.0.1:5000")
	induction := listener.BuildInduction(0)
	inductionReply, err := listener.HandleInduction(peer, induction, 0)
	if err != nil {
		t.Fatalf("HandleInduction: %v", err)
	}

	conclusion, err := listener.BuildConclusion(peer, inductionReply, 0)
	if err != nil {
		t.Fatalf("BuildConclusion: %v", err)
	}

	tampered, err := wireReEncodeWithBadCookie(conclusion)
	if err != nil {
		t.Fatalf("tampering with cookie: %v", err)
	}

	if _, err := listener.HandleConclusion(peer, tampered, 0); err == nil {
		t.Fatalf("expected a forged cookie to be rejected")
	}
	if listener.State() != Broken {
		t.Fatalf("listener state after forged cookie = %v, want Broken", listener.State())
	}
}

func TestHandshakeWithPassphraseExchangesKeys(t *testing.T) {
	caller := New(handshakeTestConfig(1), 0)
	caller.Open()
	caller.SetPassphrase("correct horse battery staple")

	listener := New(handshakeTestConfig(2), 0)
	listener.Open()
	listener.SetPassphrase("correct horse battery staple")

	peerOfListener, _ := net.ResolveUDPAddr("udp", "10.0.0.1:5000")
	peerOfCaller, _ := net.ResolveUDPAddr("udp", "10.0.0.2:6000")

	induction := caller.BuildInduction(0)
	inductionReply, err := listener.HandleInduction(peerOfListener, induction, 0)
	if err != nil {
		t.Fatalf("HandleInduction: %v", err)
	}

	caller.BeginConnect()
	conclusion, err := caller.BuildConclusion(peerOfCaller, inductionReply, 0)
	if err != nil {
		t.Fatalf("BuildConclusion: %v", err)
	}

	conclusionReply, err := listener.HandleConclusion(peerOfListener, conclusion, 0)
	if err != nil {
		t.Fatalf("HandleConclusion: %v", err)
	}

	if err := caller.HandleConclusionReply(peerOfCaller, conclusionReply); err != nil {
		t.Fatalf("HandleConclusionReply: %v", err)
	}
	if caller.State() != Connected || listener.State() != Connected {
		t.Fatalf("expected both sides Connected, got caller=%v listener=%v", caller.State(), listener.State())
	}
}
