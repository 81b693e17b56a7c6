package counter

import (
	"net/netip"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/rawsniff/internal/core"
)

func newUnregistered(t *testing.T, cfg map[string]any) *Sink {
	t.Helper()
	if cfg == nil {
		cfg = map[string]any{}
	}
	cfg["register"] = false
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func ipv4Packet(transport *core.TransportHeader, payload int) *core.ParsedPacket {
	return &core.ParsedPacket{
		Ethernet:  core.EthernetHeader{EtherType: core.EtherTypeIPv4},
		IP:        &core.IPHeader{Version: 4, SrcIP: netip.MustParseAddr("10.0.0.1"), DstIP: netip.MustParseAddr("10.0.0.2")},
		Transport: transport,
		Payload:   make([]byte, payload),
	}
}

func feed(s *Sink) {
	s.OnPacket(ipv4Packet(&core.TransportHeader{Kind: core.TransportTCP}, 10))
	s.OnPacket(ipv4Packet(&core.TransportHeader{Kind: core.TransportUDP}, 5))
	frag := ipv4Packet(nil, 0)
	frag.IP.FragmentOffset = 1480
	s.OnPacket(frag)
	s.OnPacket(&core.ParsedPacket{
		Ethernet:  core.EthernetHeader{EtherType: core.EtherTypeIPv6, VLANs: []uint16{7}},
		IP:        &core.IPHeader{Version: 6},
		Transport: &core.TransportHeader{Kind: core.TransportUDP},
	})
	s.OnPacket(&core.ParsedPacket{Ethernet: core.EthernetHeader{EtherType: core.EtherTypeARP}})

	s.OnError(core.NewTruncated(core.LayerIPv4, 20, 8))
	s.OnError(core.NewMalformed(core.LayerIPv4, "ihl below 5", 20, 16))
	s.OnError(&core.CaptureError{Kind: core.SocketClosed})
}

func TestCounts(t *testing.T) {
	s := newUnregistered(t, nil)
	defer s.Close()
	feed(s)

	assert.Equal(t, map[string]uint64{
		KeyFrames:       5,
		KeyVLAN:         1,
		KeyIPv4:         3,
		KeyIPv6:         1,
		KeyNonIP:        1,
		KeyFragment:     1,
		KeyTCP:          1,
		KeyUDP:          2,
		KeyOtherL4:      1,
		KeyPayloadBytes: 15,
		KeyTruncated:    1,
		KeyMalformed:    1,
		KeyCaptureError: 1,
	}, s.Snapshot())
}

func TestCollector(t *testing.T) {
	s := newUnregistered(t, map[string]any{"namespace": "test"})
	defer s.Close()
	feed(s)

	assert.Equal(t, 13, testutil.CollectAndCount(s))

	expected := `
# HELP test_counter_payload_bytes_total Transport payload bytes counted by the counter sink.
# TYPE test_counter_payload_bytes_total counter
test_counter_payload_bytes_total 15
`
	assert.NoError(t, testutil.CollectAndCompare(s, strings.NewReader(expected), "test_counter_payload_bytes_total"))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(s))
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 3)
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.db")

	s := newUnregistered(t, map[string]any{"db_path": path})
	feed(s)
	since := s.Since()
	require.NoError(t, s.Close())

	s = newUnregistered(t, map[string]any{"db_path": path})
	defer s.Close()
	assert.Equal(t, uint64(5), s.Snapshot()[KeyFrames])
	assert.True(t, since.Equal(s.Since()), "since carries over")

	s.OnPacket(ipv4Packet(nil, 0))
	assert.Equal(t, uint64(6), s.Snapshot()[KeyFrames])
}

func TestAutoSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.db")
	s := newUnregistered(t, map[string]any{"db_path": path, "save_interval": "10ms"})
	defer s.Close()

	s.OnPacket(ipv4Packet(nil, 0))
	assert.Eventually(t, func() bool {
		v, err := s.store.read()
		return err == nil && v != nil && v.Values[KeyFrames] == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRegisterDefault(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)

	_, err = New(nil)
	assert.Error(t, err, "a second collector with the same namespace conflicts")

	require.NoError(t, s.Close())
	s, err = New(nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestNewInvalid(t *testing.T) {
	_, err := New(map[string]any{"save_interval": "0s", "register": false})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = New(map[string]any{"unknown": 1})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = New(map[string]any{"db_path": filepath.Join(t.TempDir(), "missing", "dir", "c.db"), "register": false})
	assert.Error(t, err)
}
