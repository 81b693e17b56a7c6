// Package kafka publishes parsed packets to a Kafka topic as JSON records.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/rawsniff/internal/core"
	"firestige.xyz/rawsniff/internal/log"
	"firestige.xyz/rawsniff/internal/metrics"
	"firestige.xyz/rawsniff/internal/sink"
)

// Name is the registered sink name.
const Name = "kafka"

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
	defaultWriteTimeout = 5 * time.Second
)

func init() {
	sink.Register(Name, func(cfg map[string]any) (sink.Sink, error) {
		return New(cfg)
	})
}

// Config represents kafka sink configuration.
type Config struct {
	Brokers        []string      `mapstructure:"brokers"`         // required
	Topic          string        `mapstructure:"topic"`           // required
	BatchSize      int           `mapstructure:"batch_size"`      // default 100
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`   // default 100ms
	Compression    string        `mapstructure:"compression"`     // none|gzip|snappy|lz4|zstd, default snappy
	MaxAttempts    int           `mapstructure:"max_attempts"`    // default 3
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`   // default 5s
	Async          bool          `mapstructure:"async"`           // do not wait for broker acks
	IncludePayload bool          `mapstructure:"include_payload"` // base64 payload in each record
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink writes one message per packet, keyed by flow so a flow stays on one
// partition.
type Sink struct {
	cfg    Config
	writer messageWriter

	reported atomic.Uint64
	failed   atomic.Uint64
}

// New creates a kafka sink.
func New(cfg map[string]any) (*Sink, error) {
	c, err := parseConfig(cfg)
	if err != nil {
		return nil, err
	}
	s := &Sink{cfg: c}
	s.writer, err = s.newWriter()
	if err != nil {
		return nil, err
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"brokers":       c.Brokers,
		"topic":         c.Topic,
		"batch_size":    c.BatchSize,
		"batch_timeout": c.BatchTimeout,
		"compression":   c.Compression,
		"async":         c.Async,
	}).Info("kafka sink created")
	return s, nil
}

func parseConfig(cfg map[string]any) (Config, error) {
	c := Config{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		MaxAttempts:  defaultMaxAttempts,
		WriteTimeout: defaultWriteTimeout,
	}
	if err := sink.DecodeConfig(cfg, &c); err != nil {
		return c, err
	}
	if len(c.Brokers) == 0 {
		return c, fmt.Errorf("%w: brokers is required", core.ErrConfigInvalid)
	}
	if c.Topic == "" {
		return c, fmt.Errorf("%w: topic is required", core.ErrConfigInvalid)
	}
	if c.BatchSize <= 0 || c.MaxAttempts <= 0 || c.WriteTimeout <= 0 {
		return c, fmt.Errorf("%w: batch_size, max_attempts and write_timeout must be positive", core.ErrConfigInvalid)
	}
	if _, err := compression(c.Compression); err != nil {
		return c, err
	}
	return c, nil
}

func compression(name string) (kafka.Compression, error) {
	switch name {
	case "none", "":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("%w: invalid compression type: %s", core.ErrConfigInvalid, name)
	}
}

func (s *Sink) newWriter() (*kafka.Writer, error) {
	codec, err := compression(s.cfg.Compression)
	if err != nil {
		return nil, err
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(s.cfg.Brokers...),
		Topic:        s.cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    s.cfg.BatchSize,
		BatchTimeout: s.cfg.BatchTimeout,
		MaxAttempts:  s.cfg.MaxAttempts,
		WriteTimeout: s.cfg.WriteTimeout,
		Compression:  codec,
		Async:        s.cfg.Async,
	}
	if s.cfg.Async {
		w.Completion = func(msgs []kafka.Message, err error) {
			if err != nil {
				s.fail(err, len(msgs))
			}
		}
	}
	return w, nil
}

func (s *Sink) Name() string { return Name }

// OnPacket serializes pkt before returning, so the payload is not retained.
func (s *Sink) OnPacket(pkt *core.ParsedPacket) {
	msg, err := s.message(pkt)
	if err != nil {
		s.fail(err, 1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.fail(fmt.Errorf("kafka write failed: %w", err), 1)
		return
	}
	s.reported.Add(1)
}

func (s *Sink) message(pkt *core.ParsedPacket) (kafka.Message, error) {
	value, err := json.Marshal(sink.NewRecord(pkt, s.cfg.IncludePayload))
	if err != nil {
		return kafka.Message{}, fmt.Errorf("serialize packet failed: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(sink.FlowKey(pkt)),
		Value: value,
		Time:  pkt.Timestamp,
	}
	if pkt.Transport != nil {
		msg.Headers = []kafka.Header{{Key: "transport", Value: []byte(pkt.Transport.Kind.String())}}
	}
	return msg, nil
}

// OnError logs capture errors; parse errors are not published.
func (s *Sink) OnError(err error) {
	var ce *core.CaptureError
	if errors.As(err, &ce) {
		log.GetLogger().WithError(err).Warn("kafka sink: capture stopped")
	}
}

// Close flushes pending messages.
func (s *Sink) Close() error {
	err := s.writer.Close()
	log.GetLogger().WithFields(map[string]interface{}{
		"total_reported": s.reported.Load(),
		"total_errors":   s.failed.Load(),
	}).Info("kafka sink closed")
	if err != nil {
		return fmt.Errorf("error closing kafka writer: %w", err)
	}
	return nil
}

func (s *Sink) fail(err error, n int) {
	s.failed.Add(uint64(n))
	metrics.SinkErrorsTotal.WithLabelValues(Name).Add(float64(n))
	log.GetLogger().WithError(err).Warn("kafka sink: publish failed")
}
