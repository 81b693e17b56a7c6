// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/rawsniff/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `rawsniff:` root key in YAML.
type GlobalConfig struct {
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Decoder DecoderConfig `mapstructure:"decoder" yaml:"decoder"`
	Filter  FilterConfig  `mapstructure:"filter" yaml:"filter"`
	Sinks   []SinkConfig  `mapstructure:"sinks" yaml:"sinks"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ─── Capture ───

// CaptureConfig configures the receiver and the capture loop.
type CaptureConfig struct {
	Source      string            `mapstructure:"source" yaml:"source"`       // socket | afpacket | tap | file
	Interface   string            `mapstructure:"interface" yaml:"interface"` // Empty = all interfaces (socket only)
	File        string            `mapstructure:"file" yaml:"file"`           // pcap/pcapng path for source file
	Protocol    string            `mapstructure:"protocol" yaml:"protocol"`   // all | ip | ipv6
	Promiscuous bool              `mapstructure:"promiscuous" yaml:"promiscuous"`
	ReadTimeout string            `mapstructure:"read_timeout" yaml:"read_timeout"` // Receive wakeup interval, e.g. "500ms"
	Workers     int               `mapstructure:"workers" yaml:"workers"`           // 0 = parse on the receive goroutine
	QueueSize   int               `mapstructure:"queue_size" yaml:"queue_size"`
	Limit       uint64            `mapstructure:"limit" yaml:"limit"` // 0 = unlimited
	AFPacket    AFPacketConfig    `mapstructure:"afpacket" yaml:"afpacket"`
	ErrorPolicy ErrorPolicyConfig `mapstructure:"error_policy" yaml:"error_policy"`
}

// AFPacketConfig sizes the TPACKET_V3 ring.
type AFPacketConfig struct {
	BufferSizeMB int    `mapstructure:"buffer_size_mb" yaml:"buffer_size_mb"`
	SnapLen      int    `mapstructure:"snap_len" yaml:"snap_len"`
	FanoutID     uint16 `mapstructure:"fanout_id" yaml:"fanout_id"`
}

// ErrorPolicyConfig lists receive errors the loop should survive.
type ErrorPolicyConfig struct {
	Transient      []string `mapstructure:"transient" yaml:"transient"`             // errno names, e.g. EINTR
	MaxConsecutive int      `mapstructure:"max_consecutive" yaml:"max_consecutive"` // 0 = unbounded
}

// ReadTimeoutDuration returns the parsed read timeout.
func (c *CaptureConfig) ReadTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ReadTimeout)
	if err != nil {
		return 0
	}
	return d
}

// ─── Decoder ───

// DecoderConfig toggles optional decoding steps.
type DecoderConfig struct {
	SkipVLAN    bool `mapstructure:"skip_vlan" yaml:"skip_vlan"`
	SkipIPv6Ext bool `mapstructure:"skip_ipv6_ext" yaml:"skip_ipv6_ext"`
}

// ─── Filter ───

// FilterConfig selects which parsed packets reach the sinks. An empty list
// matches everything; lists are ANDed.
type FilterConfig struct {
	Transports []string `mapstructure:"transports" yaml:"transports,omitempty"` // tcp | udp | other
	Ports      []int    `mapstructure:"ports" yaml:"ports,omitempty"`           // source or destination
	Hosts      []string `mapstructure:"hosts" yaml:"hosts,omitempty"`           // address or CIDR, source or destination
}

// ─── Sinks ───

// SinkConfig contains sink configuration. Config is decoded by the sink itself.
type SinkConfig struct {
	Name   string         `mapstructure:"name" yaml:"name"`
	Config map[string]any `mapstructure:"config" yaml:"config,omitempty"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`     // trace / debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"`   // json / text
	Pattern string           `mapstructure:"pattern" yaml:"pattern"` // text format layout
	Time    string           `mapstructure:"time" yaml:"time"`       // time layout for %time
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stdout.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `rawsniff: ...`.
type configRoot struct {
	Rawsniff GlobalConfig `mapstructure:"rawsniff"`
}

// Load loads configuration from file. An empty path yields the defaults.
// Env vars override file values through the key replacer
// (e.g., key "rawsniff.log.level" → env "RAWSNIFF_LOG_LEVEL").
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Rawsniff

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "rawsniff." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Capture defaults
	v.SetDefault("rawsniff.capture.source", "socket")
	v.SetDefault("rawsniff.capture.interface", "")
	v.SetDefault("rawsniff.capture.file", "")
	v.SetDefault("rawsniff.capture.protocol", "all")
	v.SetDefault("rawsniff.capture.promiscuous", false)
	v.SetDefault("rawsniff.capture.read_timeout", "500ms")
	v.SetDefault("rawsniff.capture.workers", 0)
	v.SetDefault("rawsniff.capture.queue_size", 1024)
	v.SetDefault("rawsniff.capture.limit", 0)
	v.SetDefault("rawsniff.capture.afpacket.buffer_size_mb", 8)
	v.SetDefault("rawsniff.capture.afpacket.snap_len", core.MaxFrameSize)
	v.SetDefault("rawsniff.capture.afpacket.fanout_id", 0)
	v.SetDefault("rawsniff.capture.error_policy.max_consecutive", 0)

	// Decoder defaults
	v.SetDefault("rawsniff.decoder.skip_vlan", false)
	v.SetDefault("rawsniff.decoder.skip_ipv6_ext", false)

	// Log defaults
	v.SetDefault("rawsniff.log.level", "info")
	v.SetDefault("rawsniff.log.format", "text")
	v.SetDefault("rawsniff.log.pattern", "%time [%level] %msg %field%n")
	v.SetDefault("rawsniff.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("rawsniff.log.outputs.file.enabled", false)
	v.SetDefault("rawsniff.log.outputs.file.path", "/var/log/rawsniff/rawsniff.log")
	v.SetDefault("rawsniff.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("rawsniff.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("rawsniff.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("rawsniff.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("rawsniff.metrics.enabled", false)
	v.SetDefault("rawsniff.metrics.listen", ":9091")
	v.SetDefault("rawsniff.metrics.path", "/metrics")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
// Errors wrap core.ErrConfigInvalid.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: log level %q (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: log format %q (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", core.ErrConfigInvalid)
	}

	// ── Capture validation ──
	c := &cfg.Capture
	switch c.Source {
	case "socket", "afpacket", "tap", "file":
	default:
		return fmt.Errorf("%w: capture.source %q (must be socket/afpacket/tap/file)", core.ErrConfigInvalid, c.Source)
	}
	switch c.Protocol {
	case "all", "ip", "ipv6":
	default:
		return fmt.Errorf("%w: capture.protocol %q (must be all/ip/ipv6)", core.ErrConfigInvalid, c.Protocol)
	}
	if c.Source == "file" {
		if c.File == "" {
			return fmt.Errorf("%w: capture.file is required for source file", core.ErrConfigInvalid)
		}
	} else if c.Source != "socket" && c.Interface == "" {
		return fmt.Errorf("%w: capture.interface is required for source %s", core.ErrConfigInvalid, c.Source)
	}
	timeout, err := time.ParseDuration(c.ReadTimeout)
	if err != nil {
		return fmt.Errorf("%w: capture.read_timeout %q: %v", core.ErrConfigInvalid, c.ReadTimeout, err)
	}
	// receivers only observe cancellation when a receive times out
	if timeout <= 0 {
		return fmt.Errorf("%w: capture.read_timeout %q must be positive", core.ErrConfigInvalid, c.ReadTimeout)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: capture.workers must not be negative", core.ErrConfigInvalid)
	}
	if c.Workers > 0 && c.QueueSize <= 0 {
		c.QueueSize = c.Workers * 64
	}
	if c.ErrorPolicy.MaxConsecutive < 0 {
		return fmt.Errorf("%w: capture.error_policy.max_consecutive must not be negative", core.ErrConfigInvalid)
	}
	for i, name := range c.ErrorPolicy.Transient {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			return fmt.Errorf("%w: capture.error_policy.transient[%d] is empty", core.ErrConfigInvalid, i)
		}
		c.ErrorPolicy.Transient[i] = name
	}
	if c.AFPacket.SnapLen <= 0 || c.AFPacket.SnapLen > core.MaxFrameSize {
		c.AFPacket.SnapLen = core.MaxFrameSize
	}

	// ── Filter ──
	for i, name := range cfg.Filter.Transports {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "tcp", "udp", "other":
		default:
			return fmt.Errorf("%w: filter.transports[%d] %q (must be tcp/udp/other)", core.ErrConfigInvalid, i, name)
		}
		cfg.Filter.Transports[i] = name
	}
	for i, port := range cfg.Filter.Ports {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%w: filter.ports[%d] %d out of range", core.ErrConfigInvalid, i, port)
		}
	}

	// ── Sinks ──
	if len(cfg.Sinks) == 0 {
		cfg.Sinks = []SinkConfig{{Name: "console"}}
	}
	for i, s := range cfg.Sinks {
		if s.Name == "" {
			return fmt.Errorf("%w: sinks[%d]: name is required", core.ErrConfigInvalid, i)
		}
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics are enabled", core.ErrConfigInvalid)
	}

	return nil
}
