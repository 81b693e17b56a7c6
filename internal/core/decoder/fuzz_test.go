package decoder

import (
	"errors"
	"testing"

	"firestige.xyz/rawsniff/internal/core"
)

func FuzzParse(f *testing.F) {
	f.Add(makeSimpleUDPPacket())
	f.Add(makeTCPPacket(5, nil))
	f.Add(makeTCPPacket(15, []byte("fuzz")))
	f.Add(append([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 0x86, 0xDD}, ipv6Header(ipv6HopByHop, 0)...))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		pkt, err := Parse(data)
		if err != nil {
			var pe *core.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error is not a ParseError: %v", err)
			}
			if !errors.Is(err, core.ErrTruncated) && !errors.Is(err, core.ErrMalformedHeader) {
				t.Fatalf("error unwraps to neither sentinel: %v", err)
			}
			return
		}

		if len(data) < core.MinFrameSize {
			t.Fatalf("parsed a %d byte frame", len(data))
		}
		if len(pkt.Payload) > len(data) {
			t.Fatalf("payload %d bytes exceeds frame %d bytes", len(pkt.Payload), len(data))
		}
		if pkt.Transport != nil && pkt.IP == nil {
			t.Fatal("transport header without IP header")
		}
		if pkt.IP != nil && pkt.IP.Version == 4 && pkt.IP.HeaderLen < 20 {
			t.Fatalf("IPv4 header length %d below minimum", pkt.IP.HeaderLen)
		}
		if pkt.HasTCP() && pkt.Transport.DataOffset < 5 {
			t.Fatalf("TCP data offset %d below minimum", pkt.Transport.DataOffset)
		}
	})
}
