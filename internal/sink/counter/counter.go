// Package counter counts parsed packets per layer and exposes the totals as
// Prometheus metrics, optionally persisted across restarts.
package counter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/rawsniff/internal/core"
	"firestige.xyz/rawsniff/internal/log"
	"firestige.xyz/rawsniff/internal/sink"
)

// Name is the registered sink name.
const Name = "counter"

const defaultSaveInterval = time.Minute

// Counter keys.
const (
	KeyFrames       = "frames"
	KeyVLAN         = "vlan"
	KeyIPv4         = "ipv4"
	KeyIPv6         = "ipv6"
	KeyNonIP        = "non_ip"
	KeyFragment     = "fragment"
	KeyTCP          = "tcp"
	KeyUDP          = "udp"
	KeyOtherL4      = "other_l4"
	KeyPayloadBytes = "payload_bytes"
	KeyTruncated    = "truncated"
	KeyMalformed    = "malformed"
	KeyCaptureError = "capture_error"
)

func init() {
	sink.Register(Name, func(cfg map[string]any) (sink.Sink, error) {
		return New(cfg)
	})
}

// Config represents counter sink configuration.
type Config struct {
	DBPath       string        `mapstructure:"db_path"`       // empty disables persistence
	SaveInterval time.Duration `mapstructure:"save_interval"` // default 1m
	Namespace    string        `mapstructure:"namespace"`     // metric namespace, default rawsniff
	Register     *bool         `mapstructure:"register"`      // register with the default registry, default true
}

// Sink is a prometheus.Collector over per-layer packet counts.
type Sink struct {
	cfg   Config
	store *storage

	mu     sync.Mutex
	since  time.Time
	values map[string]uint64

	packetsDesc *prometheus.Desc
	errorsDesc  *prometheus.Desc
	bytesDesc   *prometheus.Desc

	registered bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a counter sink, loading persisted totals when db_path is set.
func New(cfg map[string]any) (*Sink, error) {
	c := Config{SaveInterval: defaultSaveInterval, Namespace: "rawsniff"}
	if err := sink.DecodeConfig(cfg, &c); err != nil {
		return nil, err
	}
	if c.SaveInterval <= 0 {
		return nil, fmt.Errorf("%w: save_interval must be positive", core.ErrConfigInvalid)
	}

	s := &Sink{
		cfg:    c,
		since:  time.Now().UTC(),
		values: make(map[string]uint64),
		packetsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(c.Namespace, "counter", "packets_total"),
			"Packets counted by the counter sink per layer, including persisted totals.",
			[]string{"layer"}, nil),
		errorsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(c.Namespace, "counter", "errors_total"),
			"Errors counted by the counter sink per kind, including persisted totals.",
			[]string{"kind"}, nil),
		bytesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(c.Namespace, "counter", "payload_bytes_total"),
			"Transport payload bytes counted by the counter sink.",
			nil, nil),
	}

	if c.DBPath != "" {
		store, err := openStorage(c.DBPath)
		if err != nil {
			return nil, err
		}
		prev, err := store.read()
		if err != nil {
			store.close()
			return nil, fmt.Errorf("failed to load counters: %w", err)
		}
		if prev != nil {
			s.since = prev.Since
			for k, v := range prev.Values {
				s.values[k] = v
			}
		}
		s.store = store
		s.startAutoSave()
	}

	if c.Register == nil || *c.Register {
		if err := prometheus.Register(s); err != nil {
			s.stop()
			return nil, fmt.Errorf("failed to register counter collector: %w", err)
		}
		s.registered = true
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"db_path": c.DBPath,
		"since":   s.since.Format(time.RFC3339),
	}).Info("counter sink created")
	return s, nil
}

func (s *Sink) Name() string { return Name }

func (s *Sink) OnPacket(pkt *core.ParsedPacket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[KeyFrames]++
	if len(pkt.Ethernet.VLANs) > 0 {
		s.values[KeyVLAN]++
	}
	switch {
	case pkt.IP == nil:
		s.values[KeyNonIP]++
		return
	case pkt.IP.Version == 6:
		s.values[KeyIPv6]++
	default:
		s.values[KeyIPv4]++
	}
	if pkt.IP.IsFragment() {
		s.values[KeyFragment]++
	}
	switch {
	case pkt.HasTCP():
		s.values[KeyTCP]++
	case pkt.HasUDP():
		s.values[KeyUDP]++
	default:
		s.values[KeyOtherL4]++
	}
	s.values[KeyPayloadBytes] += uint64(len(pkt.Payload))
}

func (s *Sink) OnError(err error) {
	key := KeyCaptureError
	switch {
	case errors.Is(err, core.ErrTruncated):
		key = KeyTruncated
	case errors.Is(err, core.ErrMalformedHeader):
		key = KeyMalformed
	}
	s.mu.Lock()
	s.values[key]++
	s.mu.Unlock()
}

// Snapshot returns a copy of the current totals.
func (s *Sink) Snapshot() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Since returns when counting started, carried over from persisted totals.
func (s *Sink) Since() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.since
}

func (s *Sink) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.packetsDesc
	ch <- s.errorsDesc
	ch <- s.bytesDesc
}

func (s *Sink) Collect(ch chan<- prometheus.Metric) {
	snap := s.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := float64(snap[k])
		switch k {
		case KeyPayloadBytes:
			ch <- prometheus.MustNewConstMetric(s.bytesDesc, prometheus.CounterValue, v)
		case KeyTruncated, KeyMalformed, KeyCaptureError:
			ch <- prometheus.MustNewConstMetric(s.errorsDesc, prometheus.CounterValue, v, k)
		default:
			ch <- prometheus.MustNewConstMetric(s.packetsDesc, prometheus.CounterValue, v, k)
		}
	}
}

// Close saves the totals and releases the database.
func (s *Sink) Close() error {
	return s.stop()
}

func (s *Sink) stop() error {
	if s.registered {
		prometheus.Unregister(s)
		s.registered = false
	}
	if s.store == nil {
		return nil
	}
	s.cancel()
	<-s.done

	err := s.save()
	if cerr := s.store.close(); err == nil {
		err = cerr
	}
	s.store = nil
	return err
}

func (s *Sink) save() error {
	s.mu.Lock()
	v := saved{Since: s.since, Values: make(map[string]uint64, len(s.values))}
	for k, n := range s.values {
		v.Values[k] = n
	}
	s.mu.Unlock()
	return s.store.write(v)
}

func (s *Sink) startAutoSave() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.SaveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.save(); err != nil {
					log.GetLogger().WithError(err).Warn("failed to save counters periodically")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
