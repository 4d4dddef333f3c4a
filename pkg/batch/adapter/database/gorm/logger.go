package gorm

import (
	"fmt"
	"strings"
	"time"

	gorm_logger "gorm.io/gorm/logger"

	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

// NewGormLogger creates a GORM logger writing through the package logger.
// level is "silent", "error", "warn" or "info"; anything else is silent.
func NewGormLogger(level string) gorm_logger.Interface {
	var gormLevel gorm_logger.LogLevel
	switch strings.ToLower(level) {
	case "error":
		gormLevel = gorm_logger.Error
	case "warn":
		gormLevel = gorm_logger.Warn
	case "info":
		gormLevel = gorm_logger.Info
	default:
		gormLevel = gorm_logger.Silent
	}
	return gorm_logger.New(GormWriter{}, gorm_logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormLevel,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	})
}

// GormWriter implements gorm_logger.Writer. Statement traces go to DEBUG, everything else
// (slow queries, errors) to WARN.
type GormWriter struct{}

// Printf implements gorm_logger.Writer.
func (GormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if strings.Contains(msg, "SLOW SQL") || strings.Contains(msg, "Error") || strings.Contains(msg, "error") {
		logger.Warnf("[GORM] %s", msg)
		return
	}
	logger.Debugf("[GORM] %s", msg)
}
