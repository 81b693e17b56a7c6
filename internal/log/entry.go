package log

import "github.com/sirupsen/logrus"

// entryLogger implements Logger on a logrus entry carrying the bound fields.
type entryLogger struct {
	entry *logrus.Entry
}

func newEntryLogger(l *logrus.Logger) Logger {
	return entryLogger{entry: logrus.NewEntry(l)}
}

func (e entryLogger) Debug(args ...interface{}) { e.entry.Debug(args...) }
func (e entryLogger) Info(args ...interface{})  { e.entry.Info(args...) }
func (e entryLogger) Warn(args ...interface{})  { e.entry.Warn(args...) }
func (e entryLogger) Error(args ...interface{}) { e.entry.Error(args...) }

func (e entryLogger) Debugf(format string, args ...interface{}) { e.entry.Debugf(format, args...) }
func (e entryLogger) Infof(format string, args ...interface{})  { e.entry.Infof(format, args...) }
func (e entryLogger) Warnf(format string, args ...interface{})  { e.entry.Warnf(format, args...) }
func (e entryLogger) Errorf(format string, args ...interface{}) { e.entry.Errorf(format, args...) }

func (e entryLogger) WithField(key string, value interface{}) Logger {
	return entryLogger{entry: e.entry.WithField(key, value)}
}

func (e entryLogger) WithFields(fields map[string]interface{}) Logger {
	return entryLogger{entry: e.entry.WithFields(fields)}
}

func (e entryLogger) WithError(err error) Logger {
	return entryLogger{entry: e.entry.WithError(err)}
}

func (e entryLogger) IsDebugEnabled() bool {
	return e.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
