// Package stats implements the per-socket counters and rate estimators of
// spec §4.K, grounded in kcp-go's atomic-counter style (DefaultSnmp in
// sess.go/fec.go) and in the jitter tracking from
// original_source/srtcore/jitter_tracer.cpp.
package stats

import "sync/atomic"

// Counters holds the monotonically increasing packet/byte/loss/retransmit
// totals a socket reports through BStats, updated with plain atomic adds
// the way kcp-go updates DefaultSnmp fields from arbitrary goroutines.
type Counters struct {
	PktSent       uint64
	PktRecv       uint64
	PktSndLoss    uint64
	PktRcvLoss    uint64
	PktRetrans    uint64
	PktRecvACK    uint64
	PktRecvNAK    uint64
	PktSentACK    uint64
	PktSentNAK    uint64
	BytesSent     uint64
	BytesRecv     uint64
	BytesRetrans  uint64
	PktRcvDrop    uint64
}

func (c *Counters) AddPktSent(n uint64)      { atomic.AddUint64(&c.PktSent, n) }
func (c *Counters) AddPktRecv(n uint64)      { atomic.AddUint64(&c.PktRecv, n) }
func (c *Counters) AddPktSndLoss(n uint64)   { atomic.AddUint64(&c.PktSndLoss, n) }
func (c *Counters) AddPktRcvLoss(n uint64)   { atomic.AddUint64(&c.PktRcvLoss, n) }
func (c *Counters) AddPktRetrans(n uint64)   { atomic.AddUint64(&c.PktRetrans, n) }
func (c *Counters) AddPktRecvACK(n uint64)   { atomic.AddUint64(&c.PktRecvACK, n) }
func (c *Counters) AddPktRecvNAK(n uint64)   { atomic.AddUint64(&c.PktRecvNAK, n) }
func (c *Counters) AddPktSentACK(n uint64)   { atomic.AddUint64(&c.PktSentACK, n) }
func (c *Counters) AddPktSentNAK(n uint64)   { atomic.AddUint64(&c.PktSentNAK, n) }
func (c *Counters) AddBytesSent(n uint64)    { atomic.AddUint64(&c.BytesSent, n) }
func (c *Counters) AddBytesRecv(n uint64)    { atomic.AddUint64(&c.BytesRecv, n) }
func (c *Counters) AddBytesRetrans(n uint64) { atomic.AddUint64(&c.BytesRetrans, n) }
func (c *Counters) AddPktRcvDrop(n uint64)   { atomic.AddUint64(&c.PktRcvDrop, n) }

// Snapshot is a point-in-time, non-atomic copy safe to hand to a caller
// (the BStats accessor in the root package takes one of these).
type Snapshot struct {
	PktSent, PktRecv                     uint64
	PktSndLoss, PktRcvLoss               uint64
	PktRetrans                           uint64
	PktRecvACK, PktRecvNAK               uint64
	PktSentACK, PktSentNAK               uint64
	BytesSent, BytesRecv, BytesRetrans   uint64
	PktRcvDrop                           uint64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		PktSent:      atomic.LoadUint64(&c.PktSent),
		PktRecv:      atomic.LoadUint64(&c.PktRecv),
		PktSndLoss:   atomic.LoadUint64(&c.PktSndLoss),
		PktRcvLoss:   atomic.LoadUint64(&c.PktRcvLoss),
		PktRetrans:   atomic.LoadUint64(&c.PktRetrans),
		PktRecvACK:   atomic.LoadUint64(&c.PktRecvACK),
		PktRecvNAK:   atomic.LoadUint64(&c.PktRecvNAK),
		PktSentACK:   atomic.LoadUint64(&c.PktSentACK),
		PktSentNAK:   atomic.LoadUint64(&c.PktSentNAK),
		BytesSent:    atomic.LoadUint64(&c.BytesSent),
		BytesRecv:    atomic.LoadUint64(&c.BytesRecv),
		BytesRetrans: atomic.LoadUint64(&c.BytesRetrans),
		PktRcvDrop:   atomic.LoadUint64(&c.PktRcvDrop),
	}
}
