package filter

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRecoversOneMissingShard(t *testing.T) {
	cfg := Config{DataShards: 4, ParityShards: 2}
	enc := NewEncoder(cfg)
	dec := NewDecoder(cfg)
	if enc == nil || dec == nil {
		t.Fatalf("expected valid encoder/decoder for cfg %+v", cfg)
	}

	payloads := [][]byte{
		[]byte("aaaa"),
		[]byte("bbbb"),
		[]byte("cccc"),
		[]byte("dddd"),
	}

	var parity [][]byte
	for _, p := range payloads {
		if out := enc.Add(p); out != nil {
			parity = out
		}
	}
	if parity == nil {
		t.Fatalf("expected parity shards once the group filled")
	}

	group := make([][]byte, cfg.DataShards+cfg.ParityShards)
	for i, p := range payloads {
		padded := make([]byte, len(parity[0]))
		copy(padded, p)
		group[i] = padded
	}
	for i, p := range parity {
		group[cfg.DataShards+i] = p
	}

	// simulate losing the second data shard
	lost := group[1]
	group[1] = nil

	if !dec.Reconstruct(group) {
		t.Fatalf("expected reconstruction to succeed with one missing shard")
	}
	if !bytes.Equal(group[1], lost) {
		t.Fatalf("reconstructed shard mismatch: got %q, want %q", group[1], lost)
	}
}

func TestReconstructFailsWithTooManyMissing(t *testing.T) {
	cfg := Config{DataShards: 4, ParityShards: 2}
	dec := NewDecoder(cfg)
	group := make([][]byte, 6)
	group[0] = []byte("aaaa")
	// only one shard present; need at least 4
	if dec.Reconstruct(group) {
		t.Fatalf("expected reconstruction to fail with only one shard present")
	}
}
