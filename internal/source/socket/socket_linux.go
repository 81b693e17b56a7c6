//go:build linux

package socket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"firestige.xyz/rawsniff/internal/core"
	"firestige.xyz/rawsniff/internal/log"
)

// Socket is an AF_PACKET/SOCK_RAW socket. It is owned by one receiving
// goroutine; Close may be called from any goroutine.
type Socket struct {
	fd      int
	ifindex int // bound interface
	last    int // interface of the last received frame

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open creates the socket, binds it and applies the options. It needs
// CAP_NET_RAW.
func Open(opts Options) (*Socket, error) {
	proto, err := protocolNumber(opts.Protocol)
	if err != nil {
		return nil, err
	}
	if opts.Promiscuous && opts.Interface == "" {
		return nil, fmt.Errorf("%w: promiscuous mode requires an interface", core.ErrConfigInvalid)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(proto)))
	if err != nil {
		return nil, fmt.Errorf("failed opening raw socket: %w", err)
	}
	opts.ReadTimeout = opts.readTimeout()
	s := &Socket{fd: fd}
	if err := s.setup(opts, proto); err != nil {
		unix.Close(fd)
		return nil, err
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"interface":   opts.Interface,
		"protocol":    opts.Protocol,
		"promiscuous": opts.Promiscuous,
		"timeout":     opts.ReadTimeout,
	}).Info("raw socket opened")
	return s, nil
}

func (s *Socket) setup(opts Options, proto uint16) error {
	if opts.Interface != "" {
		in, err := net.InterfaceByName(opts.Interface)
		if err != nil {
			return fmt.Errorf("unknown interface %s: %w", opts.Interface, err)
		}
		s.ifindex = in.Index

		sa := unix.SockaddrLinklayer{
			Protocol: htons(proto),
			Ifindex:  in.Index,
		}
		if err := unix.Bind(s.fd, &sa); err != nil {
			return fmt.Errorf("failed to bind to %s: %w", opts.Interface, err)
		}

		if opts.Promiscuous {
			mreq := unix.PacketMreq{
				Ifindex: int32(in.Index),
				Type:    unix.PACKET_MR_PROMISC,
			}
			if err := unix.SetsockoptPacketMreq(s.fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
				return fmt.Errorf("failed to set promiscuous for %s: %w", opts.Interface, err)
			}
		}
	}

	tv := unix.NsecToTimeval(opts.ReadTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("failed to set receive timeout: %w", err)
	}
	return nil
}

// Receive copies the next frame into buf. A receive timeout only wakes the
// call to check ctx. Other errors are returned as the raw errno.
func (s *Socket) Receive(ctx context.Context, buf []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if s.closed.Load() {
			return 0, core.ErrSocketClosed
		}

		n, from, err := unix.Recvfrom(s.fd, buf, 0)
		if err == nil {
			s.last = s.ifindex
			if sa, ok := from.(*unix.SockaddrLinklayer); ok {
				s.last = sa.Ifindex
			}
			return n, nil
		}
		if errors.Is(err, unix.EAGAIN) {
			continue
		}
		if s.closed.Load() {
			return 0, core.ErrSocketClosed
		}
		return 0, err
	}
}

// Close releases the socket. It is safe to call more than once.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = unix.Close(s.fd)
	})
	return s.closeErr
}

// Ifindex returns the index of the interface the last frame arrived on.
// Before the first frame it is the bound interface, or 0 when unbound.
func (s *Socket) Ifindex() int {
	if s.last != 0 {
		return s.last
	}
	return s.ifindex
}
