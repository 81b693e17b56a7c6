package filter

import "firestige.xyz/rawsniff/internal/core"

// Chain is one link of a filter chain: a filter and the links after it.
// The last link calls the handler. Links are immutable once built, so a
// chain may be shared by concurrent callers.
type Chain struct {
	filter  Filter
	next    *Chain
	handler func(pkt *core.ParsedPacket)
}

// NewChain links filters, in order, in front of handler.
func NewChain(handler func(pkt *core.ParsedPacket), filters []Filter) *Chain {
	c := &Chain{handler: handler}
	for i := len(filters) - 1; i >= 0; i-- {
		c = &Chain{filter: filters[i], next: c, handler: handler}
	}
	return c
}

// Filter passes pkt to this link's filter, or to the handler at the end.
func (c *Chain) Filter(pkt *core.ParsedPacket) {
	if c.filter == nil {
		c.handler(pkt)
		return
	}
	c.filter.Filter(pkt, c.next)
}

// Len returns the number of filters from this link on.
func (c *Chain) Len() int {
	n := 0
	for l := c; l.filter != nil; l = l.next {
		n++
	}
	return n
}
