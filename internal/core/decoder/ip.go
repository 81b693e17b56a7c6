// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"firestige.xyz/rawsniff/internal/core"
)

const (
	ipv4HeaderMinLen = ipv4.HeaderLen
	ipv4MinIHL       = 5
	ipv6HeaderLen    = ipv6.HeaderLen

	fragOffsetMask = 0x1FFF

	// IPv6 extension header protocol numbers
	ipv6HopByHop = 0
	ipv6Routing  = 43
	ipv6Fragment = 44
	ipv6AH       = 51
	ipv6DstOpts  = 60

	ipv6FragmentHeaderLen = 8
)

// decodeIPv4 decodes IPv4 header.
// The returned payload ends at the declared total length when that is shorter
// than the captured bytes (Ethernet padding), and at the end of the capture
// when it is longer (snap length) or zero (segmentation offload).
func decodeIPv4(data []byte) (core.IPHeader, []byte, error) {
	if len(data) < ipv4HeaderMinLen {
		return core.IPHeader{}, nil, core.NewTruncated(core.LayerIPv4, ipv4HeaderMinLen, len(data))
	}

	version := data[0] >> 4
	if version != 4 {
		return core.IPHeader{}, nil, core.NewMalformed(core.LayerIPv4,
			fmt.Sprintf("version %d in IPv4 EtherType", version), ipv4HeaderMinLen, len(data))
	}

	// IHL (Internet Header Length) - lower 4 bits of first byte, in 32-bit words
	ihl := data[0] & 0x0F
	headerLen := int(ihl) * 4
	if ihl < ipv4MinIHL {
		return core.IPHeader{}, nil, core.NewMalformed(core.LayerIPv4,
			fmt.Sprintf("ihl %d below minimum %d", ihl, ipv4MinIHL), ipv4HeaderMinLen, len(data))
	}
	if headerLen > len(data) {
		return core.IPHeader{}, nil, core.NewMalformed(core.LayerIPv4,
			fmt.Sprintf("header length %d exceeds %d remaining bytes", headerLen, len(data)), headerLen, len(data))
	}

	totalLen := binary.BigEndian.Uint16(data[2:4])
	if totalLen != 0 && int(totalLen) < headerLen {
		return core.IPHeader{}, nil, core.NewMalformed(core.LayerIPv4,
			fmt.Sprintf("total length %d below header length %d", totalLen, headerLen), headerLen, len(data))
	}

	frag := binary.BigEndian.Uint16(data[6:8])
	flags := ipv4.HeaderFlags(frag >> 13)

	ip := core.IPHeader{
		Version:        4,
		IHL:            ihl,
		HeaderLen:      uint16(headerLen),
		TotalLen:       totalLen,
		ID:             uint32(binary.BigEndian.Uint16(data[4:6])),
		DontFragment:   flags&ipv4.DontFragment != 0,
		MoreFragments:  flags&ipv4.MoreFragments != 0,
		FragmentOffset: (frag & fragOffsetMask) * 8,
		TTL:            data[8],
		Protocol:       data[9],
		SrcIP:          netip.AddrFrom4([4]byte(data[12:16])),
		DstIP:          netip.AddrFrom4([4]byte(data[16:20])),
	}
	ip.NextHeader = ip.Protocol

	end := len(data)
	if totalLen != 0 && int(totalLen) < end {
		end = int(totalLen)
	}
	return ip, data[headerLen:end], nil
}

// decodeIPv6 decodes IPv6 header and, when walkExt is set, the extension
// header chain up to the upper-layer protocol.
func decodeIPv6(data []byte, walkExt bool) (core.IPHeader, []byte, error) {
	if len(data) < ipv6HeaderLen {
		return core.IPHeader{}, nil, core.NewTruncated(core.LayerIPv6, ipv6HeaderLen, len(data))
	}

	version := data[0] >> 4
	if version != 6 {
		return core.IPHeader{}, nil, core.NewMalformed(core.LayerIPv6,
			fmt.Sprintf("version %d in IPv6 EtherType", version), ipv6HeaderLen, len(data))
	}

	payloadLen := binary.BigEndian.Uint16(data[4:6])
	ip := core.IPHeader{
		Version:    6,
		TotalLen:   uint16(min(ipv6HeaderLen+int(payloadLen), 0xFFFF)),
		NextHeader: data[6],
		Protocol:   data[6],
		TTL:        data[7],
		SrcIP:      netip.AddrFrom16([16]byte(data[8:24])),
		DstIP:      netip.AddrFrom16([16]byte(data[24:40])),
	}

	end := len(data)
	if payloadLen != 0 && ipv6HeaderLen+int(payloadLen) < end {
		end = ipv6HeaderLen + int(payloadLen)
	}
	rest := data[ipv6HeaderLen:end]

	if walkExt {
		var err error
		if rest, err = walkIPv6Extensions(&ip, rest); err != nil {
			return core.IPHeader{}, nil, err
		}
	}
	ip.HeaderLen = uint16(len(data[:end]) - len(rest))
	return ip, rest, nil
}

// walkIPv6Extensions consumes extension headers, recording the upper-layer
// protocol and any fragment header on ip.
func walkIPv6Extensions(ip *core.IPHeader, rest []byte) ([]byte, error) {
	for {
		switch ip.Protocol {
		case ipv6HopByHop, ipv6Routing, ipv6DstOpts, ipv6AH:
			if len(rest) < 2 {
				return nil, core.NewTruncated(core.LayerIPv6Ext, 2, len(rest))
			}
			extLen := (int(rest[1]) + 1) * 8
			if ip.Protocol == ipv6AH {
				extLen = (int(rest[1]) + 2) * 4
			}
			if len(rest) < extLen {
				return nil, core.NewTruncated(core.LayerIPv6Ext, extLen, len(rest))
			}
			ip.Protocol = rest[0]
			rest = rest[extLen:]

		case ipv6Fragment:
			if len(rest) < ipv6FragmentHeaderLen {
				return nil, core.NewTruncated(core.LayerIPv6Ext, ipv6FragmentHeaderLen, len(rest))
			}
			offFlags := binary.BigEndian.Uint16(rest[2:4])
			ip.FragmentOffset = (offFlags >> 3) * 8
			ip.MoreFragments = offFlags&0x1 != 0
			ip.ID = binary.BigEndian.Uint32(rest[4:8])
			ip.Protocol = rest[0]
			rest = rest[ipv6FragmentHeaderLen:]

		default:
			// Upper-layer protocol (or No Next Header) reached
			return rest, nil
		}
	}
}
