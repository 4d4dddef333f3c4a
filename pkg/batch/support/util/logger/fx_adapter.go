package logger

import (
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"
)

// NewFxLogger returns an fxevent.Logger writing through the package logger.
// Container wiring noise (provides, invokes, hooks) goes to DEBUG; failures stay at ERROR.
func NewFxLogger() fxevent.Logger {
	l := &fxevent.ZapLogger{Logger: Zap()}
	l.UseLogLevel(zapcore.DebugLevel)
	l.UseErrorLevel(zapcore.ErrorLevel)
	return l
}
