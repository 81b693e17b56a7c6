// Package core defines core data structures with zero external dependencies.
package core

import "time"

// MaxFrameSize is the size of the receive buffer; no frame is longer.
const MaxFrameSize = 65536

// MinFrameSize is the length of an untagged Ethernet header.
const MinFrameSize = 14

// RawFrame is one frame received from the link layer. Data is a view into the
// capture loop's receive buffer and is only valid until the next receive.
type RawFrame struct {
	Data           []byte
	Timestamp      time.Time
	CaptureLen     uint32
	InterfaceIndex int
}

// ParsedPacket is the result of L2-L4 header parsing.
//
// IP is nil when the EtherType is neither IPv4 nor IPv6. Transport is nil when
// there is no IP header, when the upper-layer protocol is not TCP or UDP, or
// when the datagram is a non-first fragment. Payload aliases the input buffer;
// sinks that keep it past their callback must copy it.
type ParsedPacket struct {
	Timestamp      time.Time
	CaptureLen     uint32
	InterfaceIndex int // Receiving interface, 0 when the receiver does not know it
	Ethernet       EthernetHeader
	IP             *IPHeader
	Transport      *TransportHeader
	Payload        []byte
}

// Protocol returns the upper-layer IP protocol number, or 0 for non-IP frames.
func (p *ParsedPacket) Protocol() uint8 {
	if p.IP == nil {
		return 0
	}
	return p.IP.Protocol
}

// HasTCP reports whether the packet carries a TCP header.
func (p *ParsedPacket) HasTCP() bool {
	return p.Transport != nil && p.Transport.Kind == TransportTCP
}

// HasUDP reports whether the packet carries a UDP header.
func (p *ParsedPacket) HasUDP() bool {
	return p.Transport != nil && p.Transport.Kind == TransportUDP
}
