package conn

import (
	"net"

	"github.com/pkg/errors"
	"github.com/xtaci/srt-go/errs"
	"github.com/xtaci/srt-go/wire"
	"github.com/xtaci/srt-go/xcrypto"
)

// Handshake extension flag bits packed into wire.HSExtBody.Flags (spec
// §4.I's HSREQ/HSRSP capability bitmap).
const (
	hsFlagTSBPDSnd  uint32 = 1 << 0
	hsFlagTSBPDRcv  uint32 = 1 << 1
	hsFlagCrypto    uint32 = 1 << 2
	hsFlagNAKReport uint32 = 1 << 3
	hsFlagMessageAPI uint32 = 1 << 4
)

// handshakeBodySize mirrors wire's unexported handshake body size (4
// words * 8 fields + a 16-byte address field) so this package can slice
// past the fixed body to reach a conclusion packet's extension TLVs
// without wire needing to export that detail.
const handshakeBodySize = 4*8 + 16

// handshake carries the per-attempt state a caller or listener needs
// across the induction/conclusion round trip, separate from Conn's
// steady-state fields so a failed attempt never leaves stale values
// behind on retry.
type handshake struct {
	localCookie  uint32
	peerCookie   uint32
	peerSocketID uint32
	peerExt      wire.HSExtBody
	passphrase   string
}

// BuildInduction is the first message a caller sends: version 4 (the
// trap value a listener recognizes as "not yet cookied"), this side's
// initial sequence number, and no cookie.
func (c *Conn) BuildInduction(nowUs int64) wire.ControlPacket {
	body := wire.EncodeHandshake(wire.HandshakeBody{
		Version:       4,
		InitialSeq:    c.cfg.InitialSeq,
		MaxPacketSize: uint32(c.cfg.ChunkSize),
		MaxFlowWindow: uint32(c.cfg.RcvBufCap),
		HandshakeType: HSTypeInduction,
		SocketID:      c.cfg.SocketID,
	})
	return wire.ControlPacket{
		ControlHeader: wire.ControlHeader{Type: wire.CtrlHandshake, TimestampUs: uint32(nowUs)},
		Body:          body,
	}
}

// HandleInduction is a listener's response to a caller's induction: mint
// a cookie for the peer address and echo back version 5 so the caller
// knows to proceed to conclusion.
func (c *Conn) HandleInduction(peer net.Addr, pkt wire.ControlPacket, nowUs int64) (wire.ControlPacket, error) {
	in, err := wire.DecodeHandshake(pkt.Body)
	if err != nil {
		return wire.ControlPacket{}, errors.Wrap(err, "conn: decoding induction body")
	}

	c.mu.Lock()
	c.hs.localCookie = MakeCookie(peer, nowUs)
	c.mu.Unlock()

	body := wire.EncodeHandshake(wire.HandshakeBody{
		Version:       Version5,
		InitialSeq:    c.cfg.InitialSeq,
		MaxPacketSize: in.MaxPacketSize,
		MaxFlowWindow: uint32(c.cfg.RcvBufCap),
		HandshakeType: HSTypeInduction,
		SocketID:      c.cfg.SocketID,
		SynCookie:     c.hs.localCookie,
	})
	return wire.ControlPacket{
		ControlHeader: wire.ControlHeader{Type: wire.CtrlHandshake, TimestampUs: uint32(nowUs), DestSocket: in.SocketID},
		Body:          body,
	}, nil
}

// BuildConclusion is a caller's reply to the listener's induction
// response: echo the cookie back and attach the HSREQ (and, if a
// passphrase is configured, KMREQ) extension blocks.
func (c *Conn) BuildConclusion(peer net.Addr, inductionReply wire.ControlPacket, nowUs int64) (wire.ControlPacket, error) {
	ind, err := wire.DecodeHandshake(inductionReply.Body)
	if err != nil {
		return wire.ControlPacket{}, errors.Wrap(err, "conn: decoding induction reply")
	}

	c.mu.Lock()
	c.hs.peerCookie = ind.SynCookie
	c.mu.Unlock()

	hBody := wire.EncodeHandshake(wire.HandshakeBody{
		Version:       Version5,
		InitialSeq:    c.cfg.InitialSeq,
		MaxPacketSize: ind.MaxPacketSize,
		MaxFlowWindow: uint32(c.cfg.RcvBufCap),
		HandshakeType: HSTypeConclusion,
		SocketID:      c.cfg.SocketID,
		SynCookie:     ind.SynCookie,
	})

	blocks := []wire.ExtBlock{{
		SubType: wire.ExtHSREQ,
		Payload: wire.EncodeHSExt(c.localHSExt()),
	}}
	if c.hs.passphrase != "" {
		if err := c.km.GenerateKeys(); err != nil {
			return wire.ControlPacket{}, errors.Wrap(err, "conn: generating session keys")
		}
		km, err := c.km.MakeKMMessage(c.hs.passphrase)
		if err != nil {
			return wire.ControlPacket{}, errors.Wrap(err, "conn: building KM message")
		}
		blocks = append(blocks, wire.ExtBlock{SubType: wire.ExtKMREQ, Payload: wire.EncodeKMExt(wire.KMExtBody{Message: km})})
	}

	full := append(hBody, wire.EncodeExtBlocks(blocks)...)
	return wire.ControlPacket{
		ControlHeader: wire.ControlHeader{Type: wire.CtrlHandshake, TimestampUs: uint32(nowUs), DestSocket: ind.SocketID},
		Body:          full,
	}, nil
}

// HandleConclusion is a listener's final step: verify the echoed cookie,
// decode the caller's HSREQ/KMREQ extensions, enforce the
// enforced-encryption policy, and reply with HSRSP (and KMRSP, if a
// KMREQ arrived). On success the connection moves straight to Connected;
// a cookie mismatch or policy violation rejects it instead.
func (c *Conn) HandleConclusion(peer net.Addr, pkt wire.ControlPacket, nowUs int64) (wire.ControlPacket, error) {
	in, err := wire.DecodeHandshake(pkt.Body[:handshakeBodySizeOf(pkt.Body)])
	if err != nil {
		return wire.ControlPacket{}, errors.Wrap(err, "conn: decoding conclusion body")
	}

	c.mu.Lock()
	expectedCookie := c.hs.localCookie
	c.hs.peerSocketID = in.SocketID
	c.mu.Unlock()
	if !VerifyCookie(peer, nowUs, in.SynCookie) || (expectedCookie != 0 && in.SynCookie != expectedCookie) {
		c.Reject(errs.RejRogue, errs.New(errs.Setup, errs.MinorRejectRogue, "handshake cookie mismatch"))
		return wire.ControlPacket{}, errors.New("conn: handshake cookie mismatch")
	}

	extBlocks, err := wire.DecodeExtBlocks(pkt.Body[handshakeBodySize:])
	if err != nil {
		return wire.ControlPacket{}, errors.Wrap(err, "conn: decoding conclusion extensions")
	}

	kmSecured := false
	respBlocks := []wire.ExtBlock{{SubType: wire.ExtHSRSP, Payload: wire.EncodeHSExt(c.localHSExt())}}
	for _, b := range extBlocks {
		switch b.SubType {
		case wire.ExtHSREQ:
			ext, derr := wire.DecodeHSExt(b.Payload)
			if derr != nil {
				return wire.ControlPacket{}, errors.Wrap(derr, "conn: decoding HSREQ")
			}
			c.mu.Lock()
			c.hs.peerExt = ext
			c.mu.Unlock()
		case wire.ExtKMREQ:
			km := wire.DecodeKMExt(b.Payload)
			if c.hs.passphrase == "" {
				c.Reject(errs.RejUnsecure, errs.New(errs.Setup, errs.MinorRejectSecurity, "peer offered KM but no passphrase is configured"))
				return wire.ControlPacket{}, errors.New("conn: unexpected KMREQ")
			}
			if err := c.km.ReadKMMessage(c.hs.passphrase, km.Message); err != nil {
				return wire.ControlPacket{}, errors.Wrap(err, "conn: reading KM message")
			}
			kmSecured = true
			respBlocks = append(respBlocks, wire.ExtBlock{SubType: wire.ExtKMRSP, Payload: wire.EncodeKMExt(km)})
		}
	}

	if !c.EnforceEncryptionOK(kmSecured) {
		c.Reject(errs.RejUnsecure, errs.New(errs.Setup, errs.MinorRejectSecurity, "enforced encryption requires a successful KM exchange"))
		return wire.ControlPacket{}, errors.New("conn: enforced encryption without KM")
	}

	hBody := wire.EncodeHandshake(wire.HandshakeBody{
		Version:       Version5,
		InitialSeq:    c.cfg.InitialSeq,
		MaxPacketSize: in.MaxPacketSize,
		MaxFlowWindow: uint32(c.cfg.RcvBufCap),
		HandshakeType: HSTypeConclusion,
		SocketID:      c.cfg.SocketID,
		SynCookie:     in.SynCookie,
	})
	full := append(hBody, wire.EncodeExtBlocks(respBlocks)...)

	c.SetPeer(peer)
	c.BeginConnect()
	if !c.CompleteConnect() {
		return wire.ControlPacket{}, errs.New(errs.Connection, errs.MinorBroken, "conclusion handled in an unexpected state")
	}

	return wire.ControlPacket{
		ControlHeader: wire.ControlHeader{Type: wire.CtrlHandshake, TimestampUs: uint32(nowUs), DestSocket: in.SocketID},
		Body:          full,
	}, nil
}

// HandleConclusionReply is a caller's last step: read back the
// listener's HSRSP/KMRSP, enforce the encryption policy, and complete
// the connection.
func (c *Conn) HandleConclusionReply(peer net.Addr, pkt wire.ControlPacket) error {
	resp, err := wire.DecodeHandshake(pkt.Body[:handshakeBodySizeOf(pkt.Body)])
	if err != nil {
		return errors.Wrap(err, "conn: decoding conclusion reply body")
	}
	c.mu.Lock()
	c.hs.peerSocketID = resp.SocketID
	c.mu.Unlock()

	extBlocks, err := wire.DecodeExtBlocks(pkt.Body[handshakeBodySize:])
	if err != nil {
		return errors.Wrap(err, "conn: decoding conclusion reply extensions")
	}

	kmSecured := false
	for _, b := range extBlocks {
		switch b.SubType {
		case wire.ExtHSRSP:
			ext, derr := wire.DecodeHSExt(b.Payload)
			if derr != nil {
				return errors.Wrap(derr, "conn: decoding HSRSP")
			}
			c.mu.Lock()
			c.hs.peerExt = ext
			c.mu.Unlock()
		case wire.ExtKMRSP:
			kmSecured = true
		}
	}

	if !c.EnforceEncryptionOK(kmSecured) {
		c.Reject(errs.RejUnsecure, errs.New(errs.Setup, errs.MinorRejectSecurity, "enforced encryption requires a successful KM exchange"))
		return errors.New("conn: enforced encryption without KM")
	}

	c.SetPeer(peer)
	if !c.CompleteConnect() {
		return errs.New(errs.Connection, errs.MinorBroken, "handshake completed in an unexpected state")
	}
	return nil
}

// PeerCookie returns the cookie this side last recorded for its peer
// during the handshake, for diagnostics and tests.
func (c *Conn) PeerCookie() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hs.peerCookie
}

// PeerSocketID returns the peer's socket id learned during the
// handshake, the value outgoing data packets must stamp as DestSocket.
func (c *Conn) PeerSocketID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hs.peerSocketID
}

// SetPassphrase configures the passphrase this connection uses for its
// KM exchange; an empty passphrase leaves encryption disabled.
func (c *Conn) SetPassphrase(passphrase string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hs.passphrase = passphrase
	if passphrase != "" && c.cfg.PBKeyLenByte == 0 {
		c.km = xcrypto.NewKeyManager(16)
	}
}

func (c *Conn) localHSExt() wire.HSExtBody {
	var flags uint32
	if c.cfg.TSBPDEnabled {
		flags |= hsFlagTSBPDSnd | hsFlagTSBPDRcv
	}
	if c.hs.passphrase != "" {
		flags |= hsFlagCrypto
	}
	flags |= hsFlagNAKReport
	flags |= hsFlagMessageAPI

	delayMs := uint16(c.cfg.LatencyUs / 1000)
	return wire.HSExtBody{Version: Version5, Flags: flags, RecvDelay: delayMs, SendDelay: delayMs}
}

// handshakeBodySizeOf lets HandleConclusion tolerate a conclusion packet
// whose body is exactly the fixed handshake size with no extensions
// (a caller that negotiated neither TSBPD tuning nor encryption).
func handshakeBodySizeOf(body []byte) int {
	if len(body) < handshakeBodySize {
		return len(body)
	}
	return handshakeBodySize
}
