package sqlstore

import (
	"fmt"

	gormlogger "gorm.io/gorm/logger"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
)

// gormWriter forwards gorm's printf-style output to the structured logger.
type gormWriter struct {
	logger log.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.logger.Debug(map[string]any{"component": "gorm"}, fmt.Sprintf(format, args...))
}

// newGormLogger only reports warnings and errors; slow-query tracing stays off.
func newGormLogger(l log.Logger) gormlogger.Interface {
	return gormlogger.New(gormWriter{logger: l}, gormlogger.Config{
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
