package sink

import (
	"net/netip"
	"time"

	"firestige.xyz/rawsniff/internal/core"
)

// Record is the serialized form of a ParsedPacket shared by the console and
// kafka sinks. Header fields of absent layers are omitted.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	CaptureLen uint32    `json:"capture_len"`
	Ifindex    int       `json:"ifindex,omitempty"`

	SrcMAC    string   `json:"src_mac"`
	DstMAC    string   `json:"dst_mac"`
	EtherType uint16   `json:"ethertype"`
	VLANs     []uint16 `json:"vlans,omitempty"`

	IPVersion uint8  `json:"ip_version,omitempty"`
	SrcIP     string `json:"src_ip,omitempty"`
	DstIP     string `json:"dst_ip,omitempty"`
	Protocol  uint8  `json:"protocol,omitempty"`
	TTL       uint8  `json:"ttl,omitempty"`
	Fragment  bool   `json:"fragment,omitempty"`

	Transport string `json:"transport,omitempty"`
	SrcPort   uint16 `json:"src_port,omitempty"`
	DstPort   uint16 `json:"dst_port,omitempty"`
	Seq       uint32 `json:"seq,omitempty"`
	Ack       uint32 `json:"ack,omitempty"`
	TCPFlags  string `json:"tcp_flags,omitempty"`
	Window    uint16 `json:"window,omitempty"`

	PayloadLen int    `json:"payload_len"`
	Payload    []byte `json:"payload,omitempty"`
}

// NewRecord flattens pkt. The payload is only referenced when withPayload is
// set; callers must serialize the record before returning from OnPacket.
func NewRecord(pkt *core.ParsedPacket, withPayload bool) Record {
	r := Record{
		Timestamp:  pkt.Timestamp,
		CaptureLen: pkt.CaptureLen,
		Ifindex:    pkt.InterfaceIndex,
		SrcMAC:     pkt.Ethernet.Src().String(),
		DstMAC:     pkt.Ethernet.Dst().String(),
		EtherType:  pkt.Ethernet.EtherType,
		VLANs:      pkt.Ethernet.VLANs,
		PayloadLen: len(pkt.Payload),
	}
	if withPayload {
		r.Payload = pkt.Payload
	}
	if ip := pkt.IP; ip != nil {
		r.IPVersion = ip.Version
		r.SrcIP = ip.SrcIP.String()
		r.DstIP = ip.DstIP.String()
		r.Protocol = ip.Protocol
		r.TTL = ip.TTL
		r.Fragment = ip.IsFragment()
	}
	if t := pkt.Transport; t != nil {
		r.Transport = t.Kind.String()
		r.SrcPort = t.SrcPort
		r.DstPort = t.DstPort
		if t.Kind == core.TransportTCP {
			r.Seq = t.SeqNum
			r.Ack = t.AckNum
			r.TCPFlags = t.FlagString()
			r.Window = t.Window
		}
	}
	return r
}

// FlowKey identifies the packet's flow, e.g. "10.0.0.1:40000-10.0.0.2:80".
// Non-IP frames are keyed by MAC addresses.
func FlowKey(pkt *core.ParsedPacket) string {
	if pkt.IP == nil {
		return pkt.Ethernet.Src().String() + "-" + pkt.Ethernet.Dst().String()
	}
	var sport, dport uint16
	if pkt.Transport != nil {
		sport, dport = pkt.Transport.SrcPort, pkt.Transport.DstPort
	}
	return netip.AddrPortFrom(pkt.IP.SrcIP, sport).String() + "-" +
		netip.AddrPortFrom(pkt.IP.DstIP, dport).String()
}
