// Package capture implements the receive loop that feeds link-layer frames
// through the header parser into a sink.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"firestige.xyz/rawsniff/internal/core"
	"firestige.xyz/rawsniff/internal/core/decoder"
	"firestige.xyz/rawsniff/internal/log"
	"firestige.xyz/rawsniff/internal/metrics"
	"firestige.xyz/rawsniff/internal/sink"
)

// Receiver delivers one link-layer frame per call.
//
// Receive blocks until a frame is copied into buf, the context is done, or
// the handle fails. It returns the frame length; a zero length with a nil
// error means the handle was closed. Receivers should wake periodically to
// observe ctx.
type Receiver interface {
	Receive(ctx context.Context, buf []byte) (int, error)
	Close() error
}

// InterfaceReporter is implemented by receivers that know which interface
// the last received frame arrived on.
type InterfaceReporter interface {
	Ifindex() int
}

// ErrAlreadyStarted is returned by Run on a loop that has already run.
var ErrAlreadyStarted = errors.New("rawsniff: capture loop already started")

// State is the capture loop lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateReceiving
	StateDispatching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateDispatching:
		return "dispatching"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options tune a Loop. The zero value parses on the receiving goroutine and
// stops on the first receive error.
type Options struct {
	// Name labels metrics and logs, usually the source type.
	Name string
	// Decoder defaults to a StandardDecoder with default options.
	Decoder decoder.Decoder
	Policy  ErrorPolicy
	// Workers > 0 parses on a pool of goroutines fed by a bounded queue.
	Workers int
	// QueueSize bounds the worker queue; a full queue blocks receiving.
	QueueSize int
	// Limit stops the loop after this many frames; 0 means no limit.
	Limit uint64
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Received        uint64
	Parsed          uint64
	ParseErrors     uint64
	TransientErrors uint64
	Bytes           uint64
}

// Loop owns a Receiver and runs it until cancellation, a fatal receive
// error, or the frame limit.
type Loop struct {
	recv    Receiver
	ifaces  InterfaceReporter // nil when recv cannot tell
	sink    sink.Sink
	opts    Options
	decoder decoder.Decoder
	log     log.Logger

	state atomic.Int32

	received        atomic.Uint64
	parsed          atomic.Uint64
	parseErrors     atomic.Uint64
	transientErrors atomic.Uint64
	bytes           atomic.Uint64

	// frame buffers handed to workers
	bufs sync.Pool
}

// New creates a loop. Run takes ownership of recv.
func New(recv Receiver, s sink.Sink, opts Options) *Loop {
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.Workers > 0 && opts.QueueSize <= 0 {
		opts.QueueSize = opts.Workers
	}
	dec := opts.Decoder
	if dec == nil {
		dec = decoder.NewStandardDecoder(decoder.Config{})
	}
	ifaces, _ := recv.(InterfaceReporter)
	return &Loop{
		recv:    recv,
		ifaces:  ifaces,
		sink:    s,
		opts:    opts,
		decoder: dec,
		log:     log.GetLogger().WithField("source", opts.Name),
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Received:        l.received.Load(),
		Parsed:          l.parsed.Load(),
		ParseErrors:     l.parseErrors.Load(),
		TransientErrors: l.transientErrors.Load(),
		Bytes:           l.bytes.Load(),
	}
}

// Run receives and dispatches frames until ctx is done, the frame limit is
// reached, or a fatal receive error occurs. Cancellation and the limit return
// nil. A fatal error is passed to the sink's OnError once, after all pending
// frames were dispatched, and returned as a *core.CaptureError. The receiver
// is closed on every path.
func (l *Loop) Run(ctx context.Context) (err error) {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateReceiving)) {
		return ErrAlreadyStarted
	}
	metrics.LoopState.Set(float64(StateReceiving))
	l.log.WithFields(map[string]interface{}{"workers": l.opts.Workers, "limit": l.opts.Limit}).Info("capture loop started")

	defer func() {
		if cerr := l.recv.Close(); cerr != nil {
			l.log.WithError(cerr).Warn("failed to close receiver")
		}
		l.setState(StateStopped)
		st := l.Stats()
		l.log.WithFields(map[string]interface{}{
			"received":     st.Received,
			"parsed":       st.Parsed,
			"parse_errors": st.ParseErrors,
			"bytes":        st.Bytes,
		}).Info("capture loop stopped")
	}()

	if l.opts.Workers > 0 {
		err = l.runPool(ctx)
	} else {
		err = l.runSync(ctx)
	}
	if err != nil {
		l.log.WithError(err).Error("capture loop failed")
		l.sink.OnError(err)
	}
	return err
}

func (l *Loop) runSync(ctx context.Context) error {
	buf := make([]byte, core.MaxFrameSize)
	for !l.limitReached() {
		if ctx.Err() != nil {
			return nil
		}
		l.setState(StateReceiving)
		n, err := l.receive(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		l.setState(StateDispatching)
		l.dispatch(l.frame(buf[:n]))
	}
	return nil
}

// frameBuf is a pooled copy of one frame queued for a worker.
type frameBuf struct {
	data    []byte
	ts      time.Time
	ifindex int
}

func (l *Loop) runPool(ctx context.Context) error {
	queue := make(chan *frameBuf, l.opts.QueueSize)

	var wg sync.WaitGroup
	for i := 0; i < l.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fb := range queue {
				metrics.QueueDepth.Dec()
				l.dispatch(core.RawFrame{Data: fb.data, Timestamp: fb.ts, CaptureLen: uint32(len(fb.data)), InterfaceIndex: fb.ifindex})
				l.bufs.Put(fb)
			}
		}()
	}
	// Workers drain whatever was queued before returning
	defer wg.Wait()
	defer close(queue)

	buf := make([]byte, core.MaxFrameSize)
	for !l.limitReached() {
		if ctx.Err() != nil {
			return nil
		}
		l.setState(StateReceiving)
		n, err := l.receive(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		l.setState(StateDispatching)
		raw := l.frame(buf[:n])
		fb := l.getBuf(n)
		copy(fb.data, raw.Data)
		fb.ts = raw.Timestamp
		fb.ifindex = raw.InterfaceIndex

		select {
		case queue <- fb:
			metrics.QueueDepth.Inc()
		case <-ctx.Done():
			l.bufs.Put(fb)
			return nil
		}
	}
	return nil
}

func (l *Loop) getBuf(n int) *frameBuf {
	fb, _ := l.bufs.Get().(*frameBuf)
	if fb == nil {
		fb = &frameBuf{}
	}
	if cap(fb.data) < n {
		fb.data = make([]byte, n)
	}
	fb.data = fb.data[:n]
	return fb
}

// frame counts a received frame and wraps it.
func (l *Loop) frame(data []byte) core.RawFrame {
	l.received.Add(1)
	l.bytes.Add(uint64(len(data)))
	metrics.FramesTotal.WithLabelValues(l.opts.Name).Inc()
	metrics.BytesTotal.WithLabelValues(l.opts.Name).Add(float64(len(data)))
	raw := core.RawFrame{Data: data, Timestamp: time.Now(), CaptureLen: uint32(len(data))}
	if l.ifaces != nil {
		raw.InterfaceIndex = l.ifaces.Ifindex()
	}
	return raw
}

func (l *Loop) limitReached() bool {
	return l.opts.Limit > 0 && l.received.Load() >= l.opts.Limit
}

// receive returns the length of the next frame, retrying errors the policy
// marks transient. Any other failure is returned as a *core.CaptureError.
func (l *Loop) receive(ctx context.Context, buf []byte) (int, error) {
	consecutive := 0
	for {
		n, err := l.recv.Receive(ctx, buf)
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if err == nil {
			switch {
			case n == 0:
				return 0, &core.CaptureError{Kind: core.SocketClosed}
			case n < 0 || n > len(buf):
				return 0, &core.CaptureError{Kind: core.SocketError, Err: fmt.Errorf("receiver returned length %d for a %d-byte buffer", n, len(buf))}
			}
			return n, nil
		}

		var ce *core.CaptureError
		if errors.As(err, &ce) {
			return 0, ce
		}
		if errors.Is(err, io.EOF) || errors.Is(err, core.ErrSocketClosed) {
			return 0, &core.CaptureError{Kind: core.SocketClosed, Err: err}
		}

		var errno syscall.Errno
		if !errors.As(err, &errno) {
			return 0, &core.CaptureError{Kind: core.SocketError, Err: err}
		}
		consecutive++
		if !l.opts.Policy.allows(errno, consecutive) {
			metrics.ReceiveErrorsTotal.WithLabelValues(l.opts.Name, errnoName(errno), "fatal").Inc()
			return 0, &core.CaptureError{Kind: core.SocketError, Code: errno, Err: err}
		}
		l.transientErrors.Add(1)
		metrics.ReceiveErrorsTotal.WithLabelValues(l.opts.Name, errnoName(errno), "transient").Inc()
		if l.log.IsDebugEnabled() {
			l.log.WithError(err).WithField("consecutive", consecutive).Debug("transient receive error, retrying")
		}
	}
}

// dispatch parses one frame and reports the result to the sink.
func (l *Loop) dispatch(raw core.RawFrame) {
	start := time.Now()
	pkt, err := l.decoder.Decode(raw)
	metrics.ParseLatencySeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		l.parseErrors.Add(1)
		kind, layer := "unknown", "unknown"
		var pe *core.ParseError
		if errors.As(err, &pe) {
			kind, layer = pe.Kind.String(), pe.Layer.String()
		}
		metrics.ParseErrorsTotal.WithLabelValues(kind, layer).Inc()
		l.sink.OnError(err)
		return
	}

	l.parsed.Add(1)
	metrics.PacketsTotal.WithLabelValues(networkLabel(&pkt), transportLabel(&pkt)).Inc()
	l.sink.OnPacket(&pkt)
}

func (l *Loop) setState(s State) {
	if State(l.state.Swap(int32(s))) != s {
		metrics.LoopState.Set(float64(s))
	}
}

func networkLabel(pkt *core.ParsedPacket) string {
	if pkt.IP == nil {
		return "other"
	}
	if pkt.IP.Version == 6 {
		return "ipv6"
	}
	return "ipv4"
}

func transportLabel(pkt *core.ParsedPacket) string {
	switch {
	case pkt.HasTCP():
		return "tcp"
	case pkt.HasUDP():
		return "udp"
	case pkt.IP != nil && (pkt.IP.Protocol == core.ProtocolICMP || pkt.IP.Protocol == core.ProtocolICMPv6):
		return "icmp"
	default:
		return "other"
	}
}
