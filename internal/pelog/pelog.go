// Package pelog provides the small leveled logger used throughout the
// parser. It is intentionally minimal: a handful of levels, a filter that
// drops anything below a threshold, and printf-style helpers so call sites
// read the same whether the message is a warning, a debug note, or an
// error that was downgraded to a warning because the parser kept going.
package pelog

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Level is the severity of a log record.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the minimal sink interface a Helper writes through.
type Logger interface {
	Log(level Level, msg string)
}

// StdLogger writes records to a standard library *log.Logger.
type StdLogger struct {
	l *log.Logger
}

// NewStdLogger builds a Logger on top of the standard library logger
// writing to w.
func NewStdLogger(w io.Writer) *StdLogger {
	return &StdLogger{l: log.New(w, "", log.LstdFlags)}
}

func (s *StdLogger) Log(level Level, msg string) {
	s.l.Printf("[%s] %s", level, msg)
}

// filterLogger drops any record below its threshold before handing it to
// the wrapped Logger.
type filterLogger struct {
	next      Logger
	threshold Level
}

// NewFilter wraps next so that only records at or above threshold reach it.
func NewFilter(next Logger, threshold Level) Logger {
	return &filterLogger{next: next, threshold: threshold}
}

// FilterLevel returns l unchanged; NewFilter takes the threshold Level
// directly.
func FilterLevel(l Level) Level { return l }

func (f *filterLogger) Log(level Level, msg string) {
	if level < f.threshold {
		return
	}
	f.next.Log(level, msg)
}

// Helper wraps a Logger with printf-style convenience methods, matching
// the call sites sprinkled across every directory parser.
type Helper struct {
	logger Logger
}

// NewHelper builds a Helper around logger. A nil logger yields a Helper
// that silently discards everything, so Image works with a zero-value
// Options.
func NewHelper(logger Logger) *Helper {
	if logger == nil {
		logger = NewFilter(NewStdLogger(os.Stderr), LevelError+1)
	}
	return &Helper{logger: logger}
}

func (h *Helper) Debug(args ...interface{})            { h.logger.Log(LevelDebug, fmt.Sprint(args...)) }
func (h *Helper) Debugf(f string, args ...interface{})  { h.logger.Log(LevelDebug, fmt.Sprintf(f, args...)) }
func (h *Helper) Warn(args ...interface{})              { h.logger.Log(LevelWarn, fmt.Sprint(args...)) }
func (h *Helper) Warnf(f string, args ...interface{})   { h.logger.Log(LevelWarn, fmt.Sprintf(f, args...)) }
func (h *Helper) Error(args ...interface{})             { h.logger.Log(LevelError, fmt.Sprint(args...)) }
func (h *Helper) Errorf(f string, args ...interface{})  { h.logger.Log(LevelError, fmt.Sprintf(f, args...)) }
