// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/rawsniff/internal/core"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20
	tcpMinDataOff   = 5
)

// decodeTransport decodes transport layer header (TCP/UDP).
// Returns nil header and the unchanged data for any other protocol.
func decodeTransport(data []byte, protocol uint8) (*core.TransportHeader, []byte, error) {
	switch protocol {
	case core.ProtocolTCP:
		return decodeTCP(data)
	case core.ProtocolUDP:
		return decodeUDP(data)
	default:
		// ICMP, SCTP, ESP...: valid, just not parsed here
		return nil, data, nil
	}
}

// decodeUDP decodes UDP header. A length field shorter than the captured
// data trims the payload; a longer one is clamped to what was captured.
func decodeUDP(data []byte) (*core.TransportHeader, []byte, error) {
	if len(data) < udpHeaderLen {
		return nil, nil, core.NewTruncated(core.LayerUDP, udpHeaderLen, len(data))
	}

	transport := &core.TransportHeader{
		Kind:    core.TransportUDP,
		SrcPort: binary.BigEndian.Uint16(data[0:2]),
		DstPort: binary.BigEndian.Uint16(data[2:4]),
		Length:  binary.BigEndian.Uint16(data[4:6]),
	}
	// Checksum (2 bytes at offset 6) - not needed for decoding

	// Zero length is legal for IPv6 jumbograms
	if transport.Length != 0 && transport.Length < udpHeaderLen {
		return nil, nil, core.NewMalformed(core.LayerUDP,
			fmt.Sprintf("length %d below header size %d", transport.Length, udpHeaderLen), udpHeaderLen, len(data))
	}

	end := len(data)
	if transport.Length != 0 && int(transport.Length) < end {
		end = int(transport.Length)
	}
	return transport, data[udpHeaderLen:end], nil
}

// decodeTCP decodes TCP header.
func decodeTCP(data []byte) (*core.TransportHeader, []byte, error) {
	if len(data) < tcpHeaderMinLen {
		return nil, nil, core.NewTruncated(core.LayerTCP, tcpHeaderMinLen, len(data))
	}

	// Data Offset (4 bits at offset 12, upper 4 bits), in 32-bit words
	dataOffset := data[12] >> 4
	headerLen := int(dataOffset) * 4
	if dataOffset < tcpMinDataOff {
		return nil, nil, core.NewMalformed(core.LayerTCP,
			fmt.Sprintf("data offset %d below minimum %d", dataOffset, tcpMinDataOff), tcpHeaderMinLen, len(data))
	}
	if headerLen > len(data) {
		return nil, nil, core.NewMalformed(core.LayerTCP,
			fmt.Sprintf("header length %d exceeds %d remaining bytes", headerLen, len(data)), headerLen, len(data))
	}

	transport := &core.TransportHeader{
		Kind:       core.TransportTCP,
		SrcPort:    binary.BigEndian.Uint16(data[0:2]),
		DstPort:    binary.BigEndian.Uint16(data[2:4]),
		SeqNum:     binary.BigEndian.Uint32(data[4:8]),
		AckNum:     binary.BigEndian.Uint32(data[8:12]),
		DataOffset: dataOffset,
		TCPFlags:   data[13], // CWR ECE URG ACK PSH RST SYN FIN
		Window:     binary.BigEndian.Uint16(data[14:16]),
	}

	// Payload starts after TCP header (including options)
	return transport, data[headerLen:], nil
}
