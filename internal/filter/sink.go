package filter

import (
	"sync/atomic"

	"firestige.xyz/rawsniff/internal/core"
	"firestige.xyz/rawsniff/internal/log"
	"firestige.xyz/rawsniff/internal/sink"
)

// Sink runs every packet through a filter chain and forwards the survivors
// to the next sink. Errors always pass through.
type Sink struct {
	next    sink.Sink
	chain   *Chain
	matched *CounterFilter
	seen    atomic.Uint64
}

// NewSink wraps next. The filters must be safe for concurrent use when the
// capture loop runs workers.
func NewSink(next sink.Sink, filters ...Filter) *Sink {
	matched := NewCounterFilter()
	all := append(append([]Filter(nil), filters...), matched)
	return &Sink{
		next:    next,
		chain:   NewChain(next.OnPacket, all),
		matched: matched,
	}
}

func (s *Sink) Name() string { return s.next.Name() }

func (s *Sink) OnPacket(pkt *core.ParsedPacket) {
	s.seen.Add(1)
	s.chain.Filter(pkt)
}

func (s *Sink) OnError(err error) { s.next.OnError(err) }

// Seen returns the number of packets offered to the chain.
func (s *Sink) Seen() uint64 { return s.seen.Load() }

// Matched returns the number of packets forwarded to the next sink.
func (s *Sink) Matched() uint64 { return s.matched.Count() }

func (s *Sink) Close() error {
	log.GetLogger().WithFields(map[string]interface{}{
		"seen":    s.Seen(),
		"matched": s.Matched(),
	}).Info("packet filter closed")
	return s.next.Close()
}
