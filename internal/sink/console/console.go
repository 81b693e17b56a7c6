// Package console prints parsed packets for debugging.
package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"firestige.xyz/rawsniff/internal/core"
	"firestige.xyz/rawsniff/internal/log"
	"firestige.xyz/rawsniff/internal/sink"
)

// Name is the registered sink name.
const Name = "console"

// Output formats.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatSummary = "summary"
)

// summaryPreview is how many payload bytes a summary line shows.
const summaryPreview = 8

func init() {
	sink.Register(Name, func(cfg map[string]any) (sink.Sink, error) {
		return New(cfg, os.Stdout)
	})
}

// Config represents console sink configuration.
type Config struct {
	Format  string `mapstructure:"format"`  // text | json | summary, default text
	Errors  bool   `mapstructure:"errors"`  // also print parse errors
	Payload bool   `mapstructure:"payload"` // json only: include the payload
}

// Sink writes one line per packet to an io.Writer.
type Sink struct {
	cfg Config

	mu  sync.Mutex
	out io.Writer

	printed atomic.Uint64
}

// New creates a console sink writing to out.
func New(cfg map[string]any, out io.Writer) (*Sink, error) {
	c := Config{Format: FormatText}
	if err := sink.DecodeConfig(cfg, &c); err != nil {
		return nil, err
	}
	switch c.Format {
	case FormatText, FormatJSON, FormatSummary:
	default:
		return nil, fmt.Errorf("%w: invalid format %q, must be text, json or summary", core.ErrConfigInvalid, c.Format)
	}
	log.GetLogger().WithField("format", c.Format).Debug("console sink created")
	return &Sink{cfg: c, out: out}, nil
}

func (s *Sink) Name() string { return Name }

func (s *Sink) OnPacket(pkt *core.ParsedPacket) {
	var line string
	switch s.cfg.Format {
	case FormatJSON:
		data, err := json.Marshal(sink.NewRecord(pkt, s.cfg.Payload))
		if err != nil {
			log.GetLogger().WithError(err).Warn("console sink: json marshal failed")
			return
		}
		line = string(data)
	case FormatSummary:
		line = Summary(pkt)
	default:
		line = Text(pkt)
	}
	s.println(line)
	s.printed.Add(1)
}

func (s *Sink) OnError(err error) {
	// The end of a replayed file is a normal stop, not an error.
	if errors.Is(err, core.ErrSocketClosed) && errors.Is(err, io.EOF) {
		log.GetLogger().Debug("console sink: end of input")
		return
	}
	// Capture errors end the run and are always shown.
	if !s.cfg.Errors && !errors.Is(err, core.ErrSocketError) && !errors.Is(err, core.ErrSocketClosed) {
		return
	}
	s.println("error: " + err.Error())
}

// Close reports how many packets were printed.
func (s *Sink) Close() error {
	log.GetLogger().WithField("printed", s.printed.Load()).Debug("console sink closed")
	return nil
}

func (s *Sink) println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, line)
}

// Summary renders the payload length and the first payload bytes in decimal,
// e.g. "5 bytes: [104 101 108 108 111]".
func Summary(pkt *core.ParsedPacket) string {
	preview := pkt.Payload[:min(len(pkt.Payload), summaryPreview)]
	return fmt.Sprintf("%d bytes: %v", len(pkt.Payload), preview)
}

// Text renders a tcpdump-like line.
func Text(pkt *core.ParsedPacket) string {
	var b strings.Builder
	b.WriteString(pkt.Timestamp.Format("15:04:05.000000"))
	for _, vlan := range pkt.Ethernet.VLANs {
		fmt.Fprintf(&b, " vlan %d", vlan)
	}

	ip := pkt.IP
	if ip == nil {
		fmt.Fprintf(&b, " %s > %s ethertype 0x%04x length %d",
			pkt.Ethernet.Src(), pkt.Ethernet.Dst(), pkt.Ethernet.EtherType, pkt.CaptureLen)
		return b.String()
	}

	if ip.Version == 6 {
		b.WriteString(" IP6")
	} else {
		b.WriteString(" IP")
	}
	t := pkt.Transport
	if t != nil {
		fmt.Fprintf(&b, " %s > %s: %s",
			addrPort(ip.SrcIP.String(), t.SrcPort),
			addrPort(ip.DstIP.String(), t.DstPort),
			t.Kind)
		if t.Kind == core.TransportTCP {
			fmt.Fprintf(&b, " flags [%s] seq %d win %d", t.FlagString(), t.SeqNum, t.Window)
		}
	} else {
		fmt.Fprintf(&b, " %s > %s: proto %d", ip.SrcIP, ip.DstIP, ip.Protocol)
	}
	if ip.IsFragment() {
		fmt.Fprintf(&b, " frag %d@%d", ip.ID, ip.FragmentOffset)
		if ip.MoreFragments {
			b.WriteByte('+')
		}
	}
	fmt.Fprintf(&b, " ttl %d length %d", ip.TTL, len(pkt.Payload))
	return b.String()
}

// addrPort joins like tcpdump: "10.0.0.1.80", "2001:db8::1.80".
func addrPort(addr string, port uint16) string {
	return fmt.Sprintf("%s.%d", addr, port)
}
