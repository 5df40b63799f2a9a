// Package filter implements the packet-filter handshake extension (spec
// §4.C's FILTER TLV, ExtFILTER in package wire): an optional FEC layer
// that groups a run of data packets into a Reed-Solomon code block so the
// receiver can reconstruct up to parityShards missing packets without a
// retransmit round trip. The block/shard bookkeeping follows kcp-go's
// fec.go encoder/decoder (shard cache, quorum-triggered encode, recovered
// list), adapted from FEC's own little-endian 6-byte shard header to
// carrying group membership via the data packets' own sequence numbers.
package filter

import (
	"github.com/klauspost/reedsolomon"
)

// Config negotiates the FEC block shape during the handshake's FILTER
// extension: rows data shards followed by parityShards parity shards per
// group.
type Config struct {
	DataShards   int
	ParityShards int
}

// Encoder accumulates up to Config.DataShards payloads and, once a group
// is full, produces the parity shards for it.
type Encoder struct {
	cfg   Config
	codec reedsolomon.Encoder

	shards  [][]byte
	maxSize int
	count   int
}

// NewEncoder returns nil if the shard configuration is invalid (mirrors
// kcp-go's newFECEncoder returning nil on a bad reedsolomon.New call).
func NewEncoder(cfg Config) *Encoder {
	if cfg.DataShards <= 0 || cfg.ParityShards <= 0 {
		return nil
	}
	codec, err := reedsolomon.New(cfg.DataShards, cfg.ParityShards)
	if err != nil {
		return nil
	}
	total := cfg.DataShards + cfg.ParityShards
	return &Encoder{
		cfg:    cfg,
		codec:  codec,
		shards: make([][]byte, total),
	}
}

// Add feeds one data packet's payload into the current group. When the
// group fills, it returns the parity shards to transmit alongside the
// data packets already sent; otherwise it returns nil.
func (e *Encoder) Add(payload []byte) (parity [][]byte) {
	e.shards[e.count] = append([]byte(nil), payload...)
	if len(payload) > e.maxSize {
		e.maxSize = len(payload)
	}
	e.count++

	if e.count < e.cfg.DataShards {
		return nil
	}

	cache := make([][]byte, e.cfg.DataShards+e.cfg.ParityShards)
	for i := 0; i < e.cfg.DataShards; i++ {
		shard := e.shards[i]
		if len(shard) < e.maxSize {
			padded := make([]byte, e.maxSize)
			copy(padded, shard)
			shard = padded
		}
		cache[i] = shard
	}
	for i := e.cfg.DataShards; i < len(cache); i++ {
		cache[i] = make([]byte, e.maxSize)
	}

	parity = nil
	if err := e.codec.Encode(cache); err == nil {
		parity = cache[e.cfg.DataShards:]
	}

	e.count = 0
	e.maxSize = 0
	e.shards = make([][]byte, e.cfg.DataShards+e.cfg.ParityShards)
	return parity
}

// Decoder reassembles a group from however many data and parity shards
// arrived, reconstructing missing data shards when at least
// Config.DataShards of the Config.DataShards+Config.ParityShards total
// shards are present.
type Decoder struct {
	cfg   Config
	codec reedsolomon.Encoder
}

// NewDecoder mirrors NewEncoder's validation.
func NewDecoder(cfg Config) *Decoder {
	if cfg.DataShards <= 0 || cfg.ParityShards <= 0 {
		return nil
	}
	codec, err := reedsolomon.New(cfg.DataShards, cfg.ParityShards)
	if err != nil {
		return nil
	}
	return &Decoder{cfg: cfg, codec: codec}
}

// Reconstruct takes a full group's shard slots (nil where a shard never
// arrived) and fills in any recoverable gaps in place. It returns false
// if too many shards are missing to recover the group.
func (d *Decoder) Reconstruct(shards [][]byte) (ok bool) {
	if len(shards) != d.cfg.DataShards+d.cfg.ParityShards {
		return false
	}
	present := 0
	for _, s := range shards {
		if s != nil {
			present++
		}
	}
	if present < d.cfg.DataShards {
		return false
	}
	if err := d.codec.Reconstruct(shards); err != nil {
		return false
	}
	return true
}
