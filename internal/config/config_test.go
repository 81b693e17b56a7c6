package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"firestige.xyz/rawsniff/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestLoadValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
rawsniff:
  capture:
    source: "afpacket"
    interface: "eth0"
    protocol: "ip"
    promiscuous: true
    read_timeout: "250ms"
    workers: 4
    limit: 100
    afpacket:
      buffer_size_mb: 16
      fanout_id: 7
    error_policy:
      transient: ["eintr", " EAGAIN "]
      max_consecutive: 10
  decoder:
    skip_vlan: true
  filter:
    transports: ["UDP"]
    ports: [53]
    hosts: ["10.0.0.0/8"]
  sinks:
    - name: "console"
      config:
        format: "json"
    - name: "kafka"
      config:
        brokers: ["localhost:9092"]
        topic: "frames"
  log:
    level: "debug"
    format: "json"
  metrics:
    enabled: true
    listen: "127.0.0.1:9090"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Capture.Source != "afpacket" || cfg.Capture.Interface != "eth0" {
		t.Errorf("Expected afpacket on eth0, got %s on %s", cfg.Capture.Source, cfg.Capture.Interface)
	}
	if cfg.Capture.Protocol != "ip" || !cfg.Capture.Promiscuous {
		t.Errorf("Expected protocol ip with promisc, got %s / %v", cfg.Capture.Protocol, cfg.Capture.Promiscuous)
	}
	if cfg.Capture.ReadTimeoutDuration() != 250*time.Millisecond {
		t.Errorf("Expected read timeout 250ms, got %v", cfg.Capture.ReadTimeoutDuration())
	}
	if cfg.Capture.Workers != 4 || cfg.Capture.QueueSize != 1024 {
		t.Errorf("Expected 4 workers / queue 1024, got %d / %d", cfg.Capture.Workers, cfg.Capture.QueueSize)
	}
	if cfg.Capture.Limit != 100 {
		t.Errorf("Expected limit 100, got %d", cfg.Capture.Limit)
	}
	if cfg.Capture.AFPacket.BufferSizeMB != 16 || cfg.Capture.AFPacket.FanoutID != 7 {
		t.Errorf("Unexpected afpacket config %+v", cfg.Capture.AFPacket)
	}
	if got := cfg.Capture.ErrorPolicy.Transient; len(got) != 2 || got[0] != "EINTR" || got[1] != "EAGAIN" {
		t.Errorf("Expected normalized transient errnos, got %v", got)
	}
	if cfg.Capture.ErrorPolicy.MaxConsecutive != 10 {
		t.Errorf("Expected max_consecutive 10, got %d", cfg.Capture.ErrorPolicy.MaxConsecutive)
	}
	if !cfg.Decoder.SkipVLAN || cfg.Decoder.SkipIPv6Ext {
		t.Errorf("Unexpected decoder config %+v", cfg.Decoder)
	}
	if f := cfg.Filter; len(f.Transports) != 1 || f.Transports[0] != "udp" || len(f.Ports) != 1 || f.Ports[0] != 53 || len(f.Hosts) != 1 {
		t.Errorf("Unexpected filter config %+v", cfg.Filter)
	}
	if len(cfg.Sinks) != 2 || cfg.Sinks[1].Name != "kafka" {
		t.Fatalf("Expected console and kafka sinks, got %+v", cfg.Sinks)
	}
	if cfg.Sinks[0].Config["format"] != "json" {
		t.Errorf("Expected console format json, got %v", cfg.Sinks[0].Config["format"])
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Expected debug/json logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9090" {
		t.Errorf("Unexpected metrics config %+v", cfg.Metrics)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	if cfg.Capture.Source != "socket" {
		t.Errorf("Expected default source socket, got %s", cfg.Capture.Source)
	}
	if cfg.Capture.Protocol != "all" {
		t.Errorf("Expected default protocol all, got %s", cfg.Capture.Protocol)
	}
	if cfg.Capture.Workers != 0 {
		t.Errorf("Expected synchronous loop by default, got %d workers", cfg.Capture.Workers)
	}
	if len(cfg.Capture.ErrorPolicy.Transient) != 0 {
		t.Errorf("Expected every receive error fatal by default, got %v", cfg.Capture.ErrorPolicy.Transient)
	}
	if cfg.Capture.AFPacket.SnapLen != core.MaxFrameSize {
		t.Errorf("Expected snap length %d, got %d", core.MaxFrameSize, cfg.Capture.AFPacket.SnapLen)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].Name != "console" {
		t.Errorf("Expected default console sink, got %+v", cfg.Sinks)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Expected info/text logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	configPath := writeConfig(t, `
rawsniff:
  log:
    level: "info"
  capture:
    interface: "eth0"
`)

	t.Setenv("RAWSNIFF_LOG_LEVEL", "debug")
	t.Setenv("RAWSNIFF_CAPTURE_INTERFACE", "eth1")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug from env var, got %s", cfg.Log.Level)
	}
	if cfg.Capture.Interface != "eth1" {
		t.Errorf("Expected interface eth1 from env var, got %s", cfg.Capture.Interface)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "rawsniff:\n  log:\n    level: \"loud\"\n"},
		{"log format", "rawsniff:\n  log:\n    format: \"xml\"\n"},
		{"source", "rawsniff:\n  capture:\n    source: \"pcap\"\n"},
		{"protocol", "rawsniff:\n  capture:\n    protocol: \"arp\"\n"},
		{"afpacket without interface", "rawsniff:\n  capture:\n    source: \"afpacket\"\n"},
		{"file without path", "rawsniff:\n  capture:\n    source: \"file\"\n"},
		{"read timeout", "rawsniff:\n  capture:\n    read_timeout: \"soon\"\n"},
		{"zero read timeout", "rawsniff:\n  capture:\n    read_timeout: \"0s\"\n"},
		{"negative read timeout", "rawsniff:\n  capture:\n    read_timeout: \"-1s\"\n"},
		{"negative workers", "rawsniff:\n  capture:\n    workers: -1\n"},
		{"empty transient errno", "rawsniff:\n  capture:\n    error_policy:\n      transient: [\"\"]\n"},
		{"filter transport", "rawsniff:\n  filter:\n    transports: [\"sctp\"]\n"},
		{"filter port", "rawsniff:\n  filter:\n    ports: [70000]\n"},
		{"unnamed sink", "rawsniff:\n  sinks:\n    - config: {}\n"},
		{"file output without path", "rawsniff:\n  log:\n    outputs:\n      file:\n        enabled: true\n        path: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestQueueSizeDefaultsFromWorkers(t *testing.T) {
	cfg := GlobalConfig{
		Capture: CaptureConfig{Source: "socket", Protocol: "all", ReadTimeout: "1s", Workers: 3},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		t.Fatalf("ValidateAndApplyDefaults failed: %v", err)
	}
	if cfg.Capture.QueueSize != 192 {
		t.Errorf("Expected queue size 192, got %d", cfg.Capture.QueueSize)
	}
}
