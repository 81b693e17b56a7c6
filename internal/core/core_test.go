package core

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"syscall"
	"testing"
)

// Test zero values of core structs
func TestStructZeroValues(t *testing.T) {
	t.Run("EthernetHeader", func(t *testing.T) {
		var eth EthernetHeader
		if eth.EtherType != 0 {
			t.Errorf("expected EtherType=0, got %d", eth.EtherType)
		}
		if eth.VLANs != nil {
			t.Errorf("expected VLANs=nil, got %v", eth.VLANs)
		}
	})

	t.Run("IPHeader", func(t *testing.T) {
		var ip IPHeader
		if ip.SrcIP.IsValid() || ip.DstIP.IsValid() {
			t.Errorf("expected invalid addresses, got %v -> %v", ip.SrcIP, ip.DstIP)
		}
		if ip.IsFragment() {
			t.Error("zero IPHeader should not be a fragment")
		}
	})

	t.Run("ParsedPacket", func(t *testing.T) {
		var pkt ParsedPacket
		if pkt.Protocol() != 0 {
			t.Errorf("expected protocol 0, got %d", pkt.Protocol())
		}
		if pkt.HasTCP() || pkt.HasUDP() {
			t.Error("zero ParsedPacket should carry no transport")
		}
	})
}

func TestParsedPacketAccessors(t *testing.T) {
	pkt := ParsedPacket{
		IP: &IPHeader{
			Version:  4,
			SrcIP:    netip.MustParseAddr("10.0.0.1"),
			DstIP:    netip.MustParseAddr("10.0.0.2"),
			Protocol: ProtocolTCP,
		},
		Transport: &TransportHeader{Kind: TransportTCP, SrcPort: 443, DstPort: 51000},
	}
	if pkt.Protocol() != ProtocolTCP {
		t.Errorf("expected protocol 6, got %d", pkt.Protocol())
	}
	if !pkt.HasTCP() || pkt.HasUDP() {
		t.Error("expected TCP only")
	}
}

func TestFlagString(t *testing.T) {
	tests := []struct {
		flags uint8
		want  string
	}{
		{TCPFlagSYN, "S"},
		{TCPFlagSYN | TCPFlagACK, "S."},
		{TCPFlagPSH | TCPFlagACK, "P."},
		{TCPFlagFIN | TCPFlagACK, "F."},
		{TCPFlagRST, "R"},
		{0, "none"},
	}
	for _, tt := range tests {
		th := TransportHeader{Kind: TransportTCP, TCPFlags: tt.flags}
		if got := th.FlagString(); got != tt.want {
			t.Errorf("flags %#x: expected %q, got %q", tt.flags, tt.want, got)
		}
	}

	udp := TransportHeader{Kind: TransportUDP, TCPFlags: TCPFlagSYN}
	if udp.FlagString() != "" {
		t.Errorf("UDP header should have no flag string, got %q", udp.FlagString())
	}
}

// Test sentinel errors
func TestSentinelErrors(t *testing.T) {
	t.Run("ErrorMessages", func(t *testing.T) {
		tests := []struct {
			err     error
			message string
		}{
			{ErrTruncated, "rawsniff: truncated header"},
			{ErrMalformedHeader, "rawsniff: malformed header"},
			{ErrSocketError, "rawsniff: socket error"},
			{ErrSocketClosed, "rawsniff: socket closed"},
			{ErrConfigInvalid, "rawsniff: invalid configuration"},
		}

		for _, tt := range tests {
			if tt.err.Error() != tt.message {
				t.Errorf("expected error message %q, got %q", tt.message, tt.err.Error())
			}
		}
	})

	t.Run("ParseErrorIdentity", func(t *testing.T) {
		var err error = NewTruncated(LayerIPv4, 20, 7)
		if !errors.Is(err, ErrTruncated) {
			t.Error("errors.Is failed for truncated ParseError")
		}
		if errors.Is(err, ErrMalformedHeader) {
			t.Error("truncated ParseError should not match ErrMalformedHeader")
		}

		err = fmt.Errorf("frame 3: %w", NewMalformed(LayerIPv4, "ihl 4 below minimum 5", 20, 40))
		if !errors.Is(err, ErrMalformedHeader) {
			t.Error("errors.Is failed for wrapped malformed ParseError")
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatal("errors.As failed for wrapped ParseError")
		}
		if pe.Layer != LayerIPv4 {
			t.Errorf("expected layer ipv4, got %s", pe.Layer)
		}
	})

	t.Run("CaptureErrorIdentity", func(t *testing.T) {
		var err error = &CaptureError{Kind: SocketError, Code: syscall.EBADF}
		if !errors.Is(err, ErrSocketError) {
			t.Error("errors.Is failed for SocketError")
		}
		if !errors.Is(err, ErrSocketError) || errors.Is(err, ErrSocketClosed) {
			t.Error("SocketError should not match ErrSocketClosed")
		}

		err = &CaptureError{Kind: SocketClosed, Err: io.EOF}
		if !errors.Is(err, ErrSocketClosed) {
			t.Error("errors.Is failed for SocketClosed")
		}
		if !errors.Is(err, io.EOF) {
			t.Error("CaptureError should unwrap to its underlying error")
		}
	})
}

func TestErrorStrings(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewTruncated(LayerEthernet, 14, 3), "rawsniff: truncated ethernet header: need 14 bytes, have 3"},
		{NewMalformed(LayerTCP, "data offset 3 below minimum 5", 20, 20), "rawsniff: malformed tcp header: data offset 3 below minimum 5"},
		{&CaptureError{Kind: SocketClosed}, "rawsniff: socket closed"},
		{&CaptureError{Kind: SocketError, Code: syscall.EINTR}, fmt.Sprintf("rawsniff: socket error: %s (errno %d)", syscall.EINTR.Error(), int(syscall.EINTR))},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}
