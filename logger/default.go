package logger

import "sync/atomic"

var defLogger atomic.Pointer[Logger]

func init() {
	SetLogger(NewSlog(InfoLevel, false))
}

// GetLogger returns the package-level default logger. Components created
// without a WithLogger option log through it.
func GetLogger() Logger {
	return *defLogger.Load()
}

// SetLogger replaces the default logger for components created afterwards.
// A nil logger is ignored.
func SetLogger(l Logger) {
	if l != nil {
		defLogger.Store(&l)
	}
}

func Debug(msg string, keysAndValues ...any) { GetLogger().Debug(msg, keysAndValues...) }

func Info(msg string, keysAndValues ...any) { GetLogger().Info(msg, keysAndValues...) }

func Warn(msg string, keysAndValues ...any) { GetLogger().Warn(msg, keysAndValues...) }

func Error(msg string, keysAndValues ...any) { GetLogger().Error(msg, keysAndValues...) }

func Fatal(msg string, keysAndValues ...any) { GetLogger().Fatal(msg, keysAndValues...) }

func SetLevel(level Level) { GetLogger().SetLevel(level) }

func With(keyValues ...any) Logger { return GetLogger().With(keyValues...) }
