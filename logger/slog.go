package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/phsym/console-slog"
)

// Format selects how a SlogLogger renders records.
type Format string

const (
	// FormatJSON emits one JSON object per record, with the time under "ts".
	FormatJSON Format = "json"
	// FormatConsole renders colored, human readable lines through console-slog.
	FormatConsole Format = "console"
)

// DefaultFormat returns FormatConsole when ENV is "development" and FormatJSON otherwise.
func DefaultFormat() Format {
	if os.Getenv("ENV") == "development" {
		return FormatConsole
	}

	return FormatJSON
}

// ParseFormat converts a format name to a Format. An empty name selects DefaultFormat.
func ParseFormat(name string) (Format, bool) {
	switch Format(name) {
	case "":
		return DefaultFormat(), true
	case FormatJSON, FormatConsole:
		return Format(name), true
	default:
		return DefaultFormat(), false
	}
}

// SlogLogger is the slog-backed Logger implementation.
type SlogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

var _ Logger = (*SlogLogger)(nil)

// NewSlog creates a slog logger writing to stdout in the DefaultFormat.
func NewSlog(level Level, addSource bool) Logger {
	return NewSlogWithWriter(os.Stdout, level, addSource)
}

// NewSlogWithWriter creates a slog logger writing to w in the DefaultFormat.
func NewSlogWithWriter(w io.Writer, level Level, addSource bool) Logger {
	return NewSlogFormat(w, DefaultFormat(), level, addSource)
}

// NewSlogFormat creates a slog logger writing to w in the given format.
// Console output always carries the source location.
func NewSlogFormat(w io.Writer, format Format, level Level, addSource bool) Logger {
	lv := &slog.LevelVar{}
	lv.Set(toSlogLevel(level))

	var handler slog.Handler
	switch format {
	case FormatConsole:
		handler = console.NewHandler(w, &console.HandlerOptions{AddSource: true, Level: lv})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			AddSource:   addSource,
			Level:       lv,
			ReplaceAttr: renameTime,
		})
	}

	return &SlogLogger{logger: slog.New(handler), level: lv}
}

func renameTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		a.Key = "ts"
	}

	return a
}

func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.log(slog.LevelDebug, msg, keysAndValues)
}

func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.log(slog.LevelInfo, msg, keysAndValues)
}

func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.log(slog.LevelWarn, msg, keysAndValues)
}

func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.log(slog.LevelError, msg, keysAndValues)
}

func (l *SlogLogger) Fatal(msg string, keysAndValues ...any) {
	l.log(slog.LevelError, msg, keysAndValues)
	os.Exit(1)
}

// With returns a child logger. The child shares the level of its parent, so
// SetLevel on either one affects both.
func (l *SlogLogger) With(keyValues ...any) Logger {
	return &SlogLogger{logger: l.logger.With(keyValues...), level: l.level}
}

func (l *SlogLogger) Level() Level {
	switch lv := l.level.Level(); {
	case lv <= slog.LevelDebug:
		return DebugLevel
	case lv <= slog.LevelInfo:
		return InfoLevel
	case lv <= slog.LevelWarn:
		return WarnLevel
	default:
		return ErrorLevel
	}
}

func (l *SlogLogger) SetLevel(level Level) {
	l.level.Set(toSlogLevel(level))
}

// log must be called directly by an exported method: the pc of the log site
// is taken at a fixed call depth.
func (l *SlogLogger) log(level slog.Level, msg string, args []any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // runtime.Callers, log, exported method
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.logger.Handler().Handle(ctx, r)
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
