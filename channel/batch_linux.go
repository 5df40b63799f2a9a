//go:build linux

package channel

import (
	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
)

// BatchSize mirrors kcp-go's readloop_linux.go: recvmmsg-backed batches
// amortize the syscall cost of a busy listener's demux loop.
const BatchSize = 256

// batchReader is satisfied by *ipv4.PacketConn and *ipv6.PacketConn.
type batchReader interface {
	ReadBatch(ms []ipv4.Message, flags int) (int, error)
}

// ReadBatch reads up to len(msgs) datagrams in one syscall when the
// platform and connection type support it, returning the number filled.
// It returns (0, nil) when batch mode isn't available so callers fall
// back to ReadPacket.
func (c *Channel) ReadBatch(msgs []ipv4.Message) (int, error) {
	var br batchReader
	switch {
	case c.v4 != nil:
		br = c.v4
	case c.v6 != nil:
		return 0, nil // ipv6 batch path not wired
	default:
		return 0, nil
	}

	n, err := br.ReadBatch(msgs, 0)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return n, nil
}
