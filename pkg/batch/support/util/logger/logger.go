// Package logger provides the process-wide logger used by the loader, the API server and
// their supporting adapters. It keeps a small printf-style surface (Debugf, Infof, Warnf,
// Errorf, Fatalf) on top of a zap sugared logger so call sites stay terse.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is a type representing the logging level.
type LogLevel int

const (
	// LevelDebug is the log level used for detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo is the log level used for general informational messages.
	LevelInfo
	// LevelWarn is the log level used for potential issues or warning messages.
	LevelWarn
	// LevelError is the log level used for error messages.
	LevelError
	// LevelFatal is the log level used for messages that terminate the process.
	LevelFatal
)

var (
	// level is shared by every core built by this package so SetLogLevel takes effect
	// without rebuilding the logger.
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	current atomic.Pointer[zap.SugaredLogger]
)

func init() {
	current.Store(newSugared("console", zapcore.Lock(os.Stderr)))
}

// ParseLevel converts "DEBUG", "INFO", "WARN", "ERROR" or "FATAL" (case-insensitive) into a
// LogLevel. The boolean is false for unknown values.
func ParseLevel(s string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	}
	return LevelInfo, false
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLogLevel sets the global log level.
// Unknown values fall back to INFO and a warning is written.
func SetLogLevel(s string) {
	l, ok := ParseLevel(s)
	level.SetLevel(l.zapLevel())
	if !ok {
		Warnf("Unknown log level '%s' specified. Defaulting to INFO level.", s)
	}
}

// CurrentLevel reports the active log level.
func CurrentLevel() LogLevel {
	switch level.Level() {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel:
		return LevelError
	case zapcore.FatalLevel, zapcore.PanicLevel, zapcore.DPanicLevel:
		return LevelFatal
	default:
		return LevelInfo
	}
}

// SetEncoding switches the output encoding between "console" and "json".
func SetEncoding(encoding string) error {
	switch strings.ToLower(encoding) {
	case "", "console":
		current.Store(newSugared("console", zapcore.Lock(os.Stderr)))
	case "json":
		current.Store(newSugared("json", zapcore.Lock(os.Stderr)))
	default:
		return fmt.Errorf("unsupported log encoding %q", encoding)
	}
	return nil
}

// ReplaceCore installs a logger built on the given core. Tests use it with zaptest/observer.
// The returned function restores the previous logger.
func ReplaceCore(core zapcore.Core) func() {
	prev := current.Load()
	current.Store(zap.New(leveledCore{core}).Sugar())
	return func() { current.Store(prev) }
}

// leveledCore applies the package level on top of a caller-supplied core.
type leveledCore struct {
	zapcore.Core
}

func (c leveledCore) Enabled(l zapcore.Level) bool {
	return level.Enabled(l) && c.Core.Enabled(l)
}

func (c leveledCore) With(fields []zapcore.Field) zapcore.Core {
	return leveledCore{c.Core.With(fields)}
}

func (c leveledCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

// Zap exposes the underlying structured logger for libraries that want one.
func Zap() *zap.Logger {
	return current.Load().Desugar()
}

// Sync flushes buffered log entries.
func Sync() {
	_ = current.Load().Sync()
}

func newSugared(encoding string, out zapcore.WriteSyncer) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if encoding == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zap.New(zapcore.NewCore(enc, out, level), zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	current.Load().Debugf(format, v...)
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	current.Load().Infof(format, v...)
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	current.Load().Warnf(format, v...)
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	current.Load().Errorf(format, v...)
}

// Fatalf formats and outputs a FATAL level log message, then terminates the process.
func Fatalf(format string, v ...interface{}) {
	current.Load().Fatalf(format, v...)
}
