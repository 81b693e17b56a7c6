// Package log implements structured logging on logrus.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"firestige.xyz/rawsniff/internal/config"
)

// Logger is the structured logger used across rawsniff. Loggers returned
// by the With methods carry their fields into every line.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

const (
	defaultPattern = "%time [%level] %msg %field%n"
	defaultTime    = "2006-01-02 15:04:05.000"
)

var (
	mu     sync.RWMutex
	logger Logger = newDefaultLogger()
	// outputs of the logger installed by Init
	current *outputs
)

// GetLogger returns the global logger. Before Init it writes info level
// text to stderr.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the global logger according to cfg. Console output goes to
// stderr; stdout carries sink output.
func Init(cfg config.LogConfig) error {
	l, err := newLogrus(cfg, os.Stderr)
	if err != nil {
		return err
	}
	mu.Lock()
	prev := current
	current, _ = l.Out.(*outputs)
	logger = newEntryLogger(l)
	mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return nil
}

// Close closes the file outputs opened by Init. Later writes reopen them.
func Close() error {
	mu.RLock()
	o := current
	mu.RUnlock()
	if o == nil {
		return nil
	}
	return o.Close()
}

func newDefaultLogger() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(newFormatter(defaultPattern, defaultTime))
	l.SetLevel(logrus.InfoLevel)
	return newEntryLogger(l)
}

// newLogrus builds a logrus logger writing to console plus any configured outputs.
func newLogrus(cfg config.LogConfig, console io.Writer) (*logrus.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	out := newOutputs(console)
	if fc := cfg.Outputs.File; fc.Enabled {
		if err := out.addFile(fc); err != nil {
			return nil, err
		}
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetOutput(out)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timeLayout(cfg.Time)})
	case "text", "":
		pattern := cfg.Pattern
		if pattern == "" {
			pattern = defaultPattern
		}
		f := newFormatter(pattern, timeLayout(cfg.Time))
		l.SetReportCaller(f.needsCaller())
		l.SetFormatter(f)
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be json or text)", cfg.Format)
	}
	return l, nil
}

func timeLayout(layout string) string {
	if layout == "" {
		return defaultTime
	}
	return layout
}

// parseLevel accepts the level names the config validator allows.
func parseLevel(levelStr string) (logrus.Level, error) {
	switch strings.ToLower(levelStr) {
	case "trace":
		return logrus.TraceLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown level: %s", levelStr)
	}
}
