package srt

import (
	"github.com/xtaci/srt-go/errs"
	"github.com/xtaci/srt-go/stats"
)

// BStats is bstats()'s point-in-time counter/rate/RTT snapshot for one
// connected socket (spec §6).
type BStats struct {
	stats.Snapshot

	RTTUs       int64
	RTTVarUs    int64
	SendRateBps float64
	RecvRatePps float64
}

// BStats returns the connection's accumulated statistics. It is an error
// to call it on a socket with no underlying connection (unbound, or a
// listener, which carries no per-peer counters of its own).
func (s *Socket) BStats() (BStats, error) {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()
	if c == nil {
		return BStats{}, s.setLastError(errs.New(errs.Connection, errs.MinorNotBound, "bstats on a socket with no connection"))
	}

	return BStats{
		Snapshot:    c.Counters().Snapshot(),
		RTTUs:       c.RTTEstimator().RTT(),
		RTTVarUs:    c.RTTEstimator().RTTVar(),
		SendRateBps: c.Bitrate().BitsPerSecond(),
		RecvRatePps: c.Arrival().PacketsPerSecond(),
	}, nil
}
