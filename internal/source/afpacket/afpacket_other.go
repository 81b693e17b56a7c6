//go:build !linux

// Package afpacket receives frames from a TPACKET_V3 memory-mapped ring.
package afpacket

import (
	"context"
	"fmt"
	"time"

	"firestige.xyz/rawsniff/internal/core"
)

// Options configure the ring.
type Options struct {
	Interface    string
	BufferSizeMB int
	SnapLen      int
	ReadTimeout  time.Duration
	FanoutID     uint16
}

// Source is unavailable outside Linux.
type Source struct{}

// Open always fails with core.ErrUnsupported.
func Open(opts Options) (*Source, error) {
	return nil, fmt.Errorf("%w: afpacket rings", core.ErrUnsupported)
}

func (s *Source) Receive(ctx context.Context, buf []byte) (int, error) {
	return 0, core.ErrUnsupported
}

func (s *Source) Close() error { return nil }
