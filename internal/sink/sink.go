// Package sink defines the consumer side of the capture loop and the
// registry that builds sinks from configuration.
package sink

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/rawsniff/internal/config"
	"firestige.xyz/rawsniff/internal/core"
)

// Sink receives parse results from the capture loop.
//
// OnPacket's packet, and the byte slices inside it, are only valid for the
// duration of the call. With a worker pool the loop calls OnPacket and
// OnError from several goroutines.
type Sink interface {
	Name() string
	OnPacket(pkt *core.ParsedPacket)
	OnError(err error)
	Close() error
}

// Factory builds a sink from its free-form config map.
type Factory func(cfg map[string]any) (Sink, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a sink constructor available under name.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Registered returns the registered sink names, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds a single sink.
func New(cfg config.SinkConfig) (Sink, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown sink %q (available: %s)", core.ErrConfigInvalid, cfg.Name, strings.Join(Registered(), ", "))
	}
	s, err := f(cfg.Config)
	if err != nil {
		return nil, fmt.Errorf("sink %s: %w", cfg.Name, err)
	}
	return s, nil
}

// Build builds every configured sink; several sinks are wrapped in a Multi.
// Sinks built before a failure are closed.
func Build(cfgs []config.SinkConfig) (Sink, error) {
	sinks := make([]Sink, 0, len(cfgs))
	for _, cfg := range cfgs {
		s, err := New(cfg)
		if err != nil {
			for _, built := range sinks {
				built.Close()
			}
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return NewMulti(sinks...), nil
}

// DecodeConfig decodes a free-form config map into out, rejecting unknown keys.
// Durations may be given as strings ("100ms").
func DecodeConfig(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return nil
}

// Multi fans every callback out to several sinks in order.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) OnPacket(pkt *core.ParsedPacket) {
	for _, s := range m.sinks {
		s.OnPacket(pkt)
	}
}

func (m *Multi) OnError(err error) {
	for _, s := range m.sinks {
		s.OnError(err)
	}
}

// Close closes every sink and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Func adapts plain functions to a Sink. Nil functions are skipped.
type Func struct {
	Packet func(pkt *core.ParsedPacket)
	Error  func(err error)
}

func (f Func) Name() string { return "func" }

func (f Func) OnPacket(pkt *core.ParsedPacket) {
	if f.Packet != nil {
		f.Packet(pkt)
	}
}

func (f Func) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f Func) Close() error { return nil }
