package log

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// verb renders one pattern placeholder for an entry.
type verb func(f *formatter, entry *logrus.Entry) string

var verbs = map[string]verb{
	"time":      func(f *formatter, e *logrus.Entry) string { return e.Time.Format(f.time) },
	"level":     func(_ *formatter, e *logrus.Entry) string { return e.Level.String() },
	"msg":       func(_ *formatter, e *logrus.Entry) string { return e.Message },
	"field":     func(_ *formatter, e *logrus.Entry) string { return fieldsOf(e) },
	"caller":    func(_ *formatter, e *logrus.Entry) string { return callerOf(e) },
	"func":      func(_ *formatter, e *logrus.Entry) string { return funcOf(e) },
	"goroutine": func(_ *formatter, _ *logrus.Entry) string { return goroutineID() },
	"n":         func(_ *formatter, _ *logrus.Entry) string { return "\n" },
}

// segment is either literal text or a verb.
type segment struct {
	text string
	verb verb
}

// formatter renders entries with a pattern such as
// "%time [%level] %msg %field%n". Unknown placeholders are kept as text.
type formatter struct {
	time     string
	segments []segment
	caller   bool
}

func newFormatter(pattern, timeLayout string) *formatter {
	f := &formatter{time: timeLayout}
	for len(pattern) > 0 {
		i := strings.IndexByte(pattern, '%')
		if i < 0 {
			f.segments = append(f.segments, segment{text: pattern})
			break
		}
		if i > 0 {
			f.segments = append(f.segments, segment{text: pattern[:i]})
		}
		pattern = pattern[i+1:]
		name := longestVerb(pattern)
		if name == "" {
			f.segments = append(f.segments, segment{text: "%"})
			continue
		}
		if name == "caller" || name == "func" {
			f.caller = true
		}
		f.segments = append(f.segments, segment{verb: verbs[name]})
		pattern = pattern[len(name):]
	}
	return f
}

// longestVerb returns the longest verb name prefixing s.
func longestVerb(s string) string {
	best := ""
	for name := range verbs {
		if len(name) > len(best) && strings.HasPrefix(s, name) {
			best = name
		}
	}
	return best
}

// needsCaller reports whether the pattern prints caller information.
func (f *formatter) needsCaller() bool { return f.caller }

func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	for _, s := range f.segments {
		if s.verb != nil {
			b.WriteString(s.verb(f, entry))
		} else {
			b.WriteString(s.text)
		}
	}
	return []byte(b.String()), nil
}

// callerOf returns pkg/file.go:line of the log call site.
func callerOf(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	file := entry.Caller.File[strings.LastIndexByte(entry.Caller.File, '/')+1:]
	// Function is "module/path/pkg.Func"; the module path itself may hold dots
	pkg := entry.Caller.Function[strings.LastIndexByte(entry.Caller.Function, '/')+1:]
	if dot := strings.IndexByte(pkg, '.'); dot != -1 {
		pkg = pkg[:dot]
	}
	return pkg + "/" + file + ":" + strconv.Itoa(entry.Caller.Line)
}

func funcOf(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	fn := entry.Caller.Function
	return fn[strings.LastIndexByte(fn, '.')+1:]
}

func goroutineID() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	if id := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine ")); len(id) > 0 {
		return id[0]
	}
	return "unknown"
}

// fieldsOf renders entry fields as sorted key=value pairs.
func fieldsOf(entry *logrus.Entry) string {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + fmt.Sprint(entry.Data[k])
	}
	return strings.Join(pairs, ",")
}
