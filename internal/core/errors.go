// Package core defines sentinel errors.
package core

import (
	"errors"
	"fmt"
	"syscall"
)

// Sentinel errors. Typed errors below unwrap to one of these.
var (
	// Packet parsing errors (per packet, recoverable)
	ErrTruncated       = errors.New("rawsniff: truncated header")
	ErrMalformedHeader = errors.New("rawsniff: malformed header")

	// Capture errors (fatal to the capture loop)
	ErrSocketError  = errors.New("rawsniff: socket error")
	ErrSocketClosed = errors.New("rawsniff: socket closed")

	// Source errors
	ErrUnsupported = errors.New("rawsniff: unsupported on this platform")

	// Configuration errors
	ErrConfigInvalid = errors.New("rawsniff: invalid configuration")
)

// Layer names the header a parse error occurred in.
type Layer uint8

const (
	LayerEthernet Layer = iota + 1
	LayerVLAN
	LayerIPv4
	LayerIPv6
	LayerIPv6Ext
	LayerTCP
	LayerUDP
)

func (l Layer) String() string {
	switch l {
	case LayerEthernet:
		return "ethernet"
	case LayerVLAN:
		return "vlan"
	case LayerIPv4:
		return "ipv4"
	case LayerIPv6:
		return "ipv6"
	case LayerIPv6Ext:
		return "ipv6-ext"
	case LayerTCP:
		return "tcp"
	case LayerUDP:
		return "udp"
	default:
		return fmt.Sprintf("layer(%d)", uint8(l))
	}
}

// ParseErrorKind is the parse error taxonomy.
type ParseErrorKind uint8

const (
	// Truncated means fewer bytes remain than the header needs.
	Truncated ParseErrorKind = iota + 1
	// MalformedHeader means a header field contradicts itself or the frame.
	MalformedHeader
)

func (k ParseErrorKind) String() string {
	switch k {
	case Truncated:
		return "truncated"
	case MalformedHeader:
		return "malformed"
	default:
		return fmt.Sprintf("ParseErrorKind(%d)", uint8(k))
	}
}

// ParseError describes why a frame could not be parsed.
type ParseError struct {
	Kind   ParseErrorKind
	Layer  Layer
	Need   int    // Bytes the header requires (or declares)
	Have   int    // Bytes available at that layer
	Reason string // Optional detail for MalformedHeader
}

// NewTruncated returns a Truncated parse error.
func NewTruncated(layer Layer, need, have int) *ParseError {
	return &ParseError{Kind: Truncated, Layer: layer, Need: need, Have: have}
}

// NewMalformed returns a MalformedHeader parse error.
func NewMalformed(layer Layer, reason string, need, have int) *ParseError {
	return &ParseError{Kind: MalformedHeader, Layer: layer, Reason: reason, Need: need, Have: have}
}

func (e *ParseError) Error() string {
	if e.Kind == MalformedHeader && e.Reason != "" {
		return fmt.Sprintf("rawsniff: malformed %s header: %s", e.Layer, e.Reason)
	}
	return fmt.Sprintf("rawsniff: %s %s header: need %d bytes, have %d", e.Kind, e.Layer, e.Need, e.Have)
}

func (e *ParseError) Unwrap() error {
	switch e.Kind {
	case Truncated:
		return ErrTruncated
	case MalformedHeader:
		return ErrMalformedHeader
	default:
		return nil
	}
}

// CaptureErrorKind is the capture error taxonomy.
type CaptureErrorKind uint8

const (
	// SocketError means the receive call failed with an OS error code.
	SocketError CaptureErrorKind = iota + 1
	// SocketClosed means the receive returned no data: the handle is gone.
	SocketClosed
)

func (k CaptureErrorKind) String() string {
	switch k {
	case SocketError:
		return "socket error"
	case SocketClosed:
		return "socket closed"
	default:
		return fmt.Sprintf("CaptureErrorKind(%d)", uint8(k))
	}
}

// CaptureError terminates a capture loop.
type CaptureError struct {
	Kind CaptureErrorKind
	Code syscall.Errno // Zero when the failure carried no OS error code
	Err  error         // Underlying error, if any
}

func (e *CaptureError) Error() string {
	switch {
	case e.Kind == SocketError && e.Code != 0:
		return fmt.Sprintf("rawsniff: socket error: %s (errno %d)", e.Code.Error(), int(e.Code))
	case e.Err != nil:
		return fmt.Sprintf("rawsniff: %s: %v", e.Kind, e.Err)
	default:
		return "rawsniff: " + e.Kind.String()
	}
}

func (e *CaptureError) Unwrap() []error {
	errs := make([]error, 0, 2)
	switch e.Kind {
	case SocketError:
		errs = append(errs, ErrSocketError)
	case SocketClosed:
		errs = append(errs, ErrSocketClosed)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
