// Package tap receives frames written to a TAP device.
package tap

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"firestige.xyz/rawsniff/internal/core"
)

// Source reads one Ethernet frame per Read from a TAP device.
type Source struct {
	dev  io.ReadCloser
	name string

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newSource(dev io.ReadCloser, name string) *Source {
	return &Source{dev: dev, name: name}
}

// Name returns the device name.
func (s *Source) Name() string {
	return s.name
}

// Receive reads the next frame into buf. TAP reads cannot time out, so
// cancelling ctx closes the device to unblock the read.
func (s *Source) Receive(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.closed.Load() {
		return 0, core.ErrSocketClosed
	}

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	n, err := s.dev.Read(buf)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if s.closed.Load() {
			return 0, core.ErrSocketClosed
		}
		return 0, err
	}
	return n, nil
}

// Close closes the device. It is safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.dev.Close()
	})
	return s.closeErr
}
