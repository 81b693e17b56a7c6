package console

import (
	"bytes"
	"encoding/json"
	"io"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/rawsniff/internal/config"
	"firestige.xyz/rawsniff/internal/core"
	"firestige.xyz/rawsniff/internal/sink"
)

func udpPacket(payload []byte) *core.ParsedPacket {
	return &core.ParsedPacket{
		Timestamp:  time.Date(2024, 5, 1, 12, 30, 45, 123456000, time.UTC),
		CaptureLen: uint32(42 + len(payload)),
		Ethernet:   core.EthernetHeader{EtherType: core.EtherTypeIPv4},
		IP: &core.IPHeader{
			Version:  4,
			TTL:      64,
			Protocol: core.ProtocolUDP,
			SrcIP:    netip.MustParseAddr("192.168.1.10"),
			DstIP:    netip.MustParseAddr("192.168.1.1"),
		},
		Transport: &core.TransportHeader{Kind: core.TransportUDP, SrcPort: 5353, DstPort: 53, Length: uint16(8 + len(payload))},
		Payload:   payload,
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		payload []byte
		want    string
	}{
		{[]byte("hello"), "5 bytes: [104 101 108 108 111]"},
		{[]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, "10 bytes: [0 1 2 3 4 5 6 7]"},
		{nil, "0 bytes: []"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Summary(udpPacket(tt.payload)))
	}
}

func TestText(t *testing.T) {
	assert.Equal(t,
		"12:30:45.123456 IP 192.168.1.10.5353 > 192.168.1.1.53: UDP ttl 64 length 3",
		Text(udpPacket([]byte("abc"))))

	pkt := udpPacket(nil)
	pkt.Ethernet.VLANs = []uint16{100}
	pkt.Transport = &core.TransportHeader{Kind: core.TransportTCP, SrcPort: 40000, DstPort: 80, SeqNum: 7, TCPFlags: core.TCPFlagSYN, Window: 1024}
	assert.Equal(t,
		"12:30:45.123456 vlan 100 IP 192.168.1.10.40000 > 192.168.1.1.80: TCP flags [S] seq 7 win 1024 ttl 64 length 0",
		Text(pkt))

	frag := udpPacket(nil)
	frag.Transport = nil
	frag.IP.ID = 42
	frag.IP.FragmentOffset = 1480
	assert.Equal(t,
		"12:30:45.123456 IP 192.168.1.10 > 192.168.1.1: proto 17 frag 42@1480 ttl 64 length 0",
		Text(frag))

	arp := &core.ParsedPacket{
		Timestamp:  frag.Timestamp,
		CaptureLen: 42,
		Ethernet:   core.EthernetHeader{SrcMAC: [6]byte{2, 0, 0, 0, 0, 1}, DstMAC: [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, EtherType: core.EtherTypeARP},
	}
	assert.Equal(t,
		"12:30:45.123456 02:00:00:00:00:01 > ff:ff:ff:ff:ff:ff ethertype 0x0806 length 42",
		Text(arp))
}

func TestSinkFormats(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(map[string]any{"format": "summary"}, &buf)
	require.NoError(t, err)
	s.OnPacket(udpPacket([]byte("hi")))
	assert.Equal(t, "2 bytes: [104 105]\n", buf.String())

	buf.Reset()
	s, err = New(map[string]any{"format": "json", "payload": true}, &buf)
	require.NoError(t, err)
	s.OnPacket(udpPacket([]byte("hi")))

	var rec sink.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, uint16(53), rec.DstPort)
	assert.Equal(t, []byte("hi"), rec.Payload)
	assert.NoError(t, s.Close())
}

func TestSinkErrors(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(nil, &buf)
	require.NoError(t, err)

	s.OnError(core.NewTruncated(core.LayerEthernet, 14, 3))
	assert.Empty(t, buf.String(), "parse errors are hidden by default")

	s.OnError(&core.CaptureError{Kind: core.SocketClosed, Err: io.EOF})
	assert.Empty(t, buf.String(), "end of a replayed file is not an error")

	s.OnError(&core.CaptureError{Kind: core.SocketClosed})
	assert.Equal(t, "error: rawsniff: socket closed\n", buf.String())

	buf.Reset()
	s, err = New(map[string]any{"errors": true}, &buf)
	require.NoError(t, err)
	s.OnError(core.NewTruncated(core.LayerEthernet, 14, 3))
	assert.Equal(t, "error: rawsniff: truncated ethernet header: need 14 bytes, have 3\n", buf.String())
}

func TestSinkConcurrentLines(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(map[string]any{"format": "summary"}, &buf)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.OnPacket(udpPacket([]byte{1}))
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 400)
	for _, line := range lines {
		assert.Equal(t, "1 bytes: [1]", line)
	}
}

func TestNewInvalid(t *testing.T) {
	_, err := New(map[string]any{"format": "xml"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = New(map[string]any{"colour": true}, &bytes.Buffer{})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestRegistered(t *testing.T) {
	s, err := sink.New(config.SinkConfig{Name: Name, Config: map[string]any{"format": "text"}})
	require.NoError(t, err)
	assert.Equal(t, Name, s.Name())
}
