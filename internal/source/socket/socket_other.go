//go:build !linux

package socket

import (
	"context"
	"fmt"

	"firestige.xyz/rawsniff/internal/core"
)

// Socket is unavailable outside Linux.
type Socket struct{}

// Open always fails with core.ErrUnsupported.
func Open(opts Options) (*Socket, error) {
	if _, err := protocolNumber(opts.Protocol); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: AF_PACKET sockets", core.ErrUnsupported)
}

func (s *Socket) Receive(ctx context.Context, buf []byte) (int, error) {
	return 0, core.ErrUnsupported
}

func (s *Socket) Close() error { return nil }

func (s *Socket) Ifindex() int { return 0 }
