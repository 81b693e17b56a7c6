// Package decoder implements L2-L4 protocol stack decoding.
//
// Every layer checks the bytes it is about to read against what is actually
// left in the frame; declared lengths only ever shrink the view, never grow it.
package decoder

import "firestige.xyz/rawsniff/internal/core"

// Decoder decodes raw frames into structured format.
type Decoder interface {
	Decode(raw core.RawFrame) (core.ParsedPacket, error)
}

// Config controls optional decoding steps.
type Config struct {
	// SkipVLAN leaves 802.1Q/802.1ad tags unparsed; a tagged frame is then
	// reported with EtherType 0x8100 and no IP header.
	SkipVLAN bool
	// SkipIPv6Ext stops at the first IPv6 next-header instead of walking
	// extension headers.
	SkipIPv6Ext bool
}

// StandardDecoder is the Decoder used by the capture loop. It holds no
// per-packet state and is safe for concurrent use.
type StandardDecoder struct {
	config Config
}

// NewStandardDecoder creates a decoder with the given options.
func NewStandardDecoder(cfg Config) *StandardDecoder {
	return &StandardDecoder{config: cfg}
}

// Decode parses raw.Data and stamps capture metadata on the result.
func (d *StandardDecoder) Decode(raw core.RawFrame) (core.ParsedPacket, error) {
	pkt, err := d.parse(raw.Data)
	if err != nil {
		return core.ParsedPacket{}, err
	}
	pkt.Timestamp = raw.Timestamp
	pkt.CaptureLen = raw.CaptureLen
	pkt.InterfaceIndex = raw.InterfaceIndex
	return pkt, nil
}

// Parse interprets data as Ethernet, then IPv4/IPv6, then TCP/UDP, using the
// default options. It returns a *core.ParseError on failure.
func Parse(data []byte) (core.ParsedPacket, error) {
	return defaultDecoder.parse(data)
}

var defaultDecoder = NewStandardDecoder(Config{})

func (d *StandardDecoder) parse(data []byte) (core.ParsedPacket, error) {
	pkt := core.ParsedPacket{CaptureLen: uint32(len(data))}

	eth, rest, err := decodeEthernet(data, !d.config.SkipVLAN)
	if err != nil {
		return core.ParsedPacket{}, err
	}
	pkt.Ethernet = eth

	var ip core.IPHeader
	switch eth.EtherType {
	case core.EtherTypeIPv4:
		ip, rest, err = decodeIPv4(rest)
	case core.EtherTypeIPv6:
		ip, rest, err = decodeIPv6(rest, !d.config.SkipIPv6Ext)
	default:
		// ARP, LLDP and friends: valid frames without an IP layer
		pkt.Payload = rest
		return pkt, nil
	}
	if err != nil {
		return core.ParsedPacket{}, err
	}
	pkt.IP = &ip

	// A non-first fragment starts mid-datagram; its first bytes are not a
	// transport header.
	if ip.FragmentOffset != 0 {
		pkt.Payload = rest
		return pkt, nil
	}

	transport, rest, err := decodeTransport(rest, ip.Protocol)
	if err != nil {
		return core.ParsedPacket{}, err
	}
	pkt.Transport = transport
	pkt.Payload = rest
	return pkt, nil
}
