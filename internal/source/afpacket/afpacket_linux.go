//go:build linux

// Package afpacket receives frames from a TPACKET_V3 memory-mapped ring.
package afpacket

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/afpacket"

	"firestige.xyz/rawsniff/internal/core"
	"firestige.xyz/rawsniff/internal/log"
)

const defaultPollTimeout = 500 * time.Millisecond

// Options configure the ring.
type Options struct {
	Interface    string
	BufferSizeMB int
	SnapLen      int
	// ReadTimeout is the ring poll timeout, how often a blocked receive
	// wakes to check cancellation.
	ReadTimeout time.Duration
	// FanoutID > 0 joins a PACKET_FANOUT group hashed by flow.
	FanoutID uint16
}

// Source reads frames from an AF_PACKET ring.
type Source struct {
	handle  *afpacket.TPacket
	ring    ringSize
	ifindex int // interface of the last received frame

	closed    atomic.Bool
	closeOnce sync.Once
}

// Open maps the ring on the interface.
func Open(opts Options) (*Source, error) {
	if opts.Interface == "" {
		return nil, fmt.Errorf("%w: afpacket needs an interface", core.ErrConfigInvalid)
	}
	ring, err := recomputeSize(opts.BufferSizeMB, opts.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}
	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(opts.Interface),
		afpacket.OptFrameSize(ring.frameSize),
		afpacket.OptBlockSize(ring.blockSize),
		afpacket.OptNumBlocks(ring.numBlocks),
		afpacket.OptPollTimeout(timeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open afpacket ring on %s: %w", opts.Interface, err)
	}

	if opts.FanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, opts.FanoutID); err != nil {
			tp.Close()
			return nil, fmt.Errorf("failed to join fanout group %d: %w", opts.FanoutID, err)
		}
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"interface":  opts.Interface,
		"frame_size": ring.frameSize,
		"block_size": ring.blockSize,
		"num_blocks": ring.numBlocks,
		"fanout_id":  opts.FanoutID,
	}).Info("afpacket ring opened")

	return &Source{handle: tp, ring: ring}, nil
}

// Receive copies the next frame from the ring into buf.
func (s *Source) Receive(ctx context.Context, buf []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if s.closed.Load() {
			return 0, core.ErrSocketClosed
		}

		data, ci, err := s.handle.ZeroCopyReadPacketData()
		if err == nil {
			s.ifindex = ci.InterfaceIndex
			return copy(buf, data), nil
		}
		if errors.Is(err, afpacket.ErrTimeout) {
			continue
		}
		return 0, err
	}
}

// Ifindex returns the interface index of the last received frame.
func (s *Source) Ifindex() int {
	return s.ifindex
}

// Close unmaps the ring. It is safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if stats, _, err := s.handle.SocketStats(); err == nil {
			log.GetLogger().WithFields(map[string]interface{}{
				"packets": stats.Packets(),
				"drops":   stats.Drops(),
			}).Info("afpacket ring closed")
		}
		s.handle.Close()
	})
	return nil
}
