// Package filter drops parsed packets by header fields before they reach the
// sinks.
package filter

import (
	"fmt"
	"net/netip"
	"strings"
	"sync/atomic"

	"firestige.xyz/rawsniff/internal/config"
	"firestige.xyz/rawsniff/internal/core"
)

type Filter interface {
	Filter(pkt *core.ParsedPacket, chain *Chain)
}

// CounterFilter counts the packets that reach it. Safe for concurrent use.
type CounterFilter struct {
	count atomic.Uint64
}

func NewCounterFilter() *CounterFilter {
	return &CounterFilter{}
}

func (f *CounterFilter) Filter(pkt *core.ParsedPacket, chain *Chain) {
	f.count.Add(1)
	chain.Filter(pkt)
}

func (f *CounterFilter) Count() uint64 {
	return f.count.Load()
}

// TransportFilter keeps packets whose transport is one of the allowed kinds.
// "other" covers IP packets without a parsed TCP or UDP header; non-IP frames
// never match.
type TransportFilter struct {
	tcp, udp, other bool
}

func NewTransportFilter(names ...string) (*TransportFilter, error) {
	f := &TransportFilter{}
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "tcp":
			f.tcp = true
		case "udp":
			f.udp = true
		case "other":
			f.other = true
		default:
			return nil, fmt.Errorf("%w: unknown transport %q", core.ErrConfigInvalid, name)
		}
	}
	return f, nil
}

func (f *TransportFilter) Filter(pkt *core.ParsedPacket, chain *Chain) {
	var ok bool
	switch {
	case pkt.HasTCP():
		ok = f.tcp
	case pkt.HasUDP():
		ok = f.udp
	default:
		ok = f.other && pkt.IP != nil
	}
	if ok {
		chain.Filter(pkt)
	}
}

// PortFilter keeps packets whose source or destination port is listed.
type PortFilter struct {
	ports map[uint16]struct{}
}

func NewPortFilter(ports ...uint16) *PortFilter {
	f := &PortFilter{ports: make(map[uint16]struct{}, len(ports))}
	for _, p := range ports {
		f.ports[p] = struct{}{}
	}
	return f
}

func (f *PortFilter) Filter(pkt *core.ParsedPacket, chain *Chain) {
	if pkt.Transport == nil {
		return
	}
	_, src := f.ports[pkt.Transport.SrcPort]
	_, dst := f.ports[pkt.Transport.DstPort]
	if src || dst {
		chain.Filter(pkt)
	}
}

// HostFilter keeps IP packets whose source or destination address falls in
// one of the prefixes.
type HostFilter struct {
	prefixes []netip.Prefix
}

// NewHostFilter parses addresses ("10.0.0.1") and CIDRs ("10.0.0.0/8").
func NewHostFilter(hosts ...string) (*HostFilter, error) {
	f := &HostFilter{prefixes: make([]netip.Prefix, 0, len(hosts))}
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if strings.Contains(h, "/") {
			prefix, err := netip.ParsePrefix(h)
			if err != nil {
				return nil, fmt.Errorf("%w: host %q: %v", core.ErrConfigInvalid, h, err)
			}
			f.prefixes = append(f.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(h)
		if err != nil {
			return nil, fmt.Errorf("%w: host %q: %v", core.ErrConfigInvalid, h, err)
		}
		f.prefixes = append(f.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return f, nil
}

func (f *HostFilter) Filter(pkt *core.ParsedPacket, chain *Chain) {
	if pkt.IP == nil {
		return
	}
	for _, p := range f.prefixes {
		if p.Contains(pkt.IP.SrcIP) || p.Contains(pkt.IP.DstIP) {
			chain.Filter(pkt)
			return
		}
	}
}

// FromConfig builds the filters a FilterConfig asks for, in the order
// transport, port, host. An empty config yields no filters.
func FromConfig(cfg config.FilterConfig) ([]Filter, error) {
	var filters []Filter
	if len(cfg.Transports) > 0 {
		f, err := NewTransportFilter(cfg.Transports...)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	if len(cfg.Ports) > 0 {
		ports := make([]uint16, 0, len(cfg.Ports))
		for _, p := range cfg.Ports {
			if p < 0 || p > 65535 {
				return nil, fmt.Errorf("%w: port %d out of range", core.ErrConfigInvalid, p)
			}
			ports = append(ports, uint16(p))
		}
		filters = append(filters, NewPortFilter(ports...))
	}
	if len(cfg.Hosts) > 0 {
		f, err := NewHostFilter(cfg.Hosts...)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}
