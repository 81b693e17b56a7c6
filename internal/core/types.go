// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net"
	"net/netip"
)

// EtherType values the parser dispatches on.
const (
	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeARP  uint16 = 0x0806
	EtherTypeVLAN uint16 = 0x8100
	EtherTypeIPv6 uint16 = 0x86DD
	EtherTypeQinQ uint16 = 0x88A8
)

// IP protocol numbers.
const (
	ProtocolICMP   uint8 = 1
	ProtocolTCP    uint8 = 6
	ProtocolUDP    uint8 = 17
	ProtocolICMPv6 uint8 = 58
)

// EthernetHeader represents L2 Ethernet frame header.
type EthernetHeader struct {
	DstMAC    [6]byte
	SrcMAC    [6]byte
	EtherType uint16   // Innermost EtherType, after any VLAN tags
	VLANs     []uint16 // VLAN IDs, outermost first (QinQ has 2)
}

// Src returns the source MAC as a net.HardwareAddr.
func (h EthernetHeader) Src() net.HardwareAddr { return net.HardwareAddr(h.SrcMAC[:]) }

// Dst returns the destination MAC as a net.HardwareAddr.
func (h EthernetHeader) Dst() net.HardwareAddr { return net.HardwareAddr(h.DstMAC[:]) }

// IPHeader represents L3 IP header (IPv4/IPv6).
type IPHeader struct {
	Version   uint8
	HeaderLen uint16 // Bytes, including IPv4 options or IPv6 extension headers
	TotalLen  uint16 // Declared length of header plus payload
	TTL       uint8  // Hop limit for IPv6
	SrcIP     netip.Addr
	DstIP     netip.Addr

	// Protocol is the upper-layer protocol. For IPv6 this is the value
	// found after walking extension headers; NextHeader keeps the first one.
	Protocol   uint8
	NextHeader uint8

	IHL uint8  // IPv4 header length in 32-bit words (5-15)
	ID  uint32 // IPv4 identification, or IPv6 fragment header identification

	// Fragmentation (IPv4 flags/offset or IPv6 fragment extension header)
	MoreFragments  bool
	DontFragment   bool
	FragmentOffset uint16 // In bytes
}

// IsFragment reports whether the datagram is part of a fragmented packet.
func (h *IPHeader) IsFragment() bool {
	return h.MoreFragments || h.FragmentOffset != 0
}

// TransportKind distinguishes the transport header variants.
type TransportKind uint8

const (
	TransportTCP TransportKind = iota + 1
	TransportUDP
)

func (k TransportKind) String() string {
	switch k {
	case TransportTCP:
		return "TCP"
	case TransportUDP:
		return "UDP"
	default:
		return fmt.Sprintf("TransportKind(%d)", uint8(k))
	}
}

// TCP flag bits, lower byte of the flags field.
const (
	TCPFlagFIN uint8 = 1 << iota
	TCPFlagSYN
	TCPFlagRST
	TCPFlagPSH
	TCPFlagACK
	TCPFlagURG
	TCPFlagECE
	TCPFlagCWR
)

// TransportHeader represents L4 transport layer header (TCP/UDP).
type TransportHeader struct {
	Kind    TransportKind
	SrcPort uint16
	DstPort uint16

	// TCP-specific fields (only populated for TCP)
	SeqNum     uint32
	AckNum     uint32
	DataOffset uint8 // In 32-bit words
	TCPFlags   uint8
	Window     uint16

	// UDP-specific fields (only populated for UDP)
	Length uint16
}

// FlagString renders TCP flags the way tcpdump does, e.g. "S." for SYN-ACK.
func (t *TransportHeader) FlagString() string {
	if t.Kind != TransportTCP {
		return ""
	}
	var b []byte
	for _, f := range []struct {
		bit uint8
		c   byte
	}{
		{TCPFlagSYN, 'S'}, {TCPFlagFIN, 'F'}, {TCPFlagPSH, 'P'}, {TCPFlagRST, 'R'},
		{TCPFlagURG, 'U'}, {TCPFlagECE, 'E'}, {TCPFlagCWR, 'W'}, {TCPFlagACK, '.'},
	} {
		if t.TCPFlags&f.bit != 0 {
			b = append(b, f.c)
		}
	}
	if len(b) == 0 {
		return "none"
	}
	return string(b)
}
