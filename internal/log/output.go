package log

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/rawsniff/internal/config"
)

// outputs fans each log line out to the console and the optional rotating
// file. A failing writer does not stop the others.
type outputs struct {
	writers []io.Writer
	closers []io.Closer
}

func newOutputs(console io.Writer) *outputs {
	return &outputs{writers: []io.Writer{console}}
}

func (o *outputs) Write(p []byte) (n int, err error) {
	for _, w := range o.writers {
		if _, werr := w.Write(p); werr != nil {
			err = werr
		}
	}
	return len(p), err
}

// addFile appends a lumberjack writer rotating at fc.Path.
func (o *outputs) addFile(fc config.FileOutputConfig) error {
	if fc.Path == "" {
		return fmt.Errorf("failed to create file output: file output requires 'path' field")
	}
	file := &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.Rotation.MaxSizeMB,
		MaxBackups: fc.Rotation.MaxBackups,
		MaxAge:     fc.Rotation.MaxAgeDays,
		Compress:   fc.Rotation.Compress,
	}
	o.writers = append(o.writers, file)
	o.closers = append(o.closers, file)
	return nil
}

// Close closes the file outputs; the console is left open.
func (o *outputs) Close() error {
	var errs []error
	for _, c := range o.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
