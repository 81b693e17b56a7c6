// Package socket receives link-layer frames from an AF_PACKET raw socket.
package socket

import (
	"fmt"
	"time"

	"firestige.xyz/rawsniff/internal/core"
)

// Ethernet protocol numbers for the socket, host byte order.
const (
	ethPAll  uint16 = 0x0003
	ethPIP          = core.EtherTypeIPv4
	ethPIPv6        = core.EtherTypeIPv6
)

// defaultReadTimeout bounds how long a receive blocks before checking
// cancellation when Options.ReadTimeout is unset.
const defaultReadTimeout = 500 * time.Millisecond

// Options configure a raw socket.
type Options struct {
	// Interface binds the socket to one interface; empty receives from all.
	Interface string
	// Protocol selects the frames delivered: "all", "ip" or "ipv6".
	Protocol string
	// Promiscuous enables promiscuous mode on Interface.
	Promiscuous bool
	// ReadTimeout is how often a blocked receive wakes to check cancellation.
	// Zero or negative means defaultReadTimeout.
	ReadTimeout time.Duration
}

func (o Options) readTimeout() time.Duration {
	if o.ReadTimeout <= 0 {
		return defaultReadTimeout
	}
	return o.ReadTimeout
}

// protocolNumber maps a protocol name to its ETH_P_* value.
func protocolNumber(name string) (uint16, error) {
	switch name {
	case "", "all":
		return ethPAll, nil
	case "ip":
		return ethPIP, nil
	case "ipv6":
		return ethPIPv6, nil
	default:
		return 0, fmt.Errorf("%w: socket protocol %q", core.ErrConfigInvalid, name)
	}
}

// htons converts to network byte order, as socket(2) and sockaddr_ll expect.
func htons(in uint16) uint16 {
	return (in<<8)&0xff00 | in>>8
}
