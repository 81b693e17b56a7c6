// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/rawsniff/internal/core"
)

const (
	ethernetHeaderLen = 14
	vlanHeaderLen     = 4 // TCI + inner EtherType
	vlanIDMask        = 0x0FFF
)

func isVLANTag(etherType uint16) bool {
	return etherType == core.EtherTypeVLAN || etherType == core.EtherTypeQinQ
}

// decodeEthernet reads the MAC addresses and EtherType, consuming stacked
// 802.1Q/802.1ad tags when parseVLAN is set. It returns the bytes that
// follow the last tag.
func decodeEthernet(data []byte, parseVLAN bool) (core.EthernetHeader, []byte, error) {
	var eth core.EthernetHeader
	if len(data) < ethernetHeaderLen {
		return eth, nil, core.NewTruncated(core.LayerEthernet, ethernetHeaderLen, len(data))
	}
	copy(eth.DstMAC[:], data[:6])
	copy(eth.SrcMAC[:], data[6:12])
	eth.EtherType = binary.BigEndian.Uint16(data[12:ethernetHeaderLen])

	rest := data[ethernetHeaderLen:]
	for parseVLAN && isVLANTag(eth.EtherType) {
		if len(rest) < vlanHeaderLen {
			return core.EthernetHeader{}, nil, core.NewTruncated(core.LayerVLAN, vlanHeaderLen, len(rest))
		}
		eth.VLANs = append(eth.VLANs, binary.BigEndian.Uint16(rest)&vlanIDMask)
		eth.EtherType = binary.BigEndian.Uint16(rest[2:vlanHeaderLen])
		rest = rest[vlanHeaderLen:]
	}
	return eth, rest, nil
}
